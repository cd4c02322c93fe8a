package input

import (
	"os/exec"

	"github.com/pkg/errors"

	"gyrodesk/internal/util"
)

// Strategy names accepted by Select
const (
	StrategyAuto    = "auto"
	StrategyXdotool = "xdotool"
	StrategyRobotgo = "robotgo"
	StrategyLog     = "log"
)

// newRobotActuator is set by robot.go when built with the robotgo tag.
var newRobotActuator func() Actuator

// lookPath is swapped in tests
var lookPath = exec.LookPath

// Select picks the actuation strategy once at startup.
// "auto" prefers xdotool, then robotgo, then the log-only dry run.
func Select(strategy string) (Actuator, error) {
	logger := util.GetLogger().With("component", "input")

	switch strategy {
	case StrategyXdotool:
		path, err := lookPath("xdotool")
		if err != nil {
			return nil, errors.Wrap(err, "xdotool strategy requested but not installed")
		}
		return NewXdotoolActuator(path), nil

	case StrategyRobotgo:
		if newRobotActuator == nil {
			return nil, errors.New("robotgo strategy requested but binary was built without the robotgo tag")
		}
		return newRobotActuator(), nil

	case StrategyLog:
		return NewLogActuator(), nil

	case StrategyAuto, "":
		if path, err := lookPath("xdotool"); err == nil {
			logger.Info("Using xdotool for input injection", "path", path)
			return NewXdotoolActuator(path), nil
		}
		if newRobotActuator != nil {
			logger.Info("xdotool not found, using robotgo for input injection")
			return newRobotActuator(), nil
		}
		logger.Warn("No input backend available, pointer and keyboard events will only be logged")
		return NewLogActuator(), nil

	default:
		return nil, errors.Errorf("unknown input strategy %q", strategy)
	}
}
