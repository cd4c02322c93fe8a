package capture

import (
	"github.com/pkg/errors"

	"gyrodesk/internal/util"
)

// Source names accepted by Select
const (
	SourceAuto    = "auto"
	SourceRobotgo = "robotgo"
	SourcePattern = "pattern"
)

// Size of the pattern source used when nothing else is available
const (
	PatternWidth  = 1280
	PatternHeight = 720
)

// newRobotSource is set by robot.go when built with the robotgo tag.
var newRobotSource func() FrameSource

// Select picks the frame source once at startup
func Select(name string) (FrameSource, error) {
	switch name {
	case SourceRobotgo:
		if newRobotSource == nil {
			return nil, errors.New("robotgo capture requested but binary was built without the robotgo tag")
		}
		return newRobotSource(), nil
	case SourcePattern:
		return NewPatternSource(PatternWidth, PatternHeight), nil
	case SourceAuto, "":
		if newRobotSource != nil {
			return newRobotSource(), nil
		}
		util.GetLogger().Warn("No screen capture backend compiled in, streaming a test pattern", "component", "capture")
		return NewPatternSource(PatternWidth, PatternHeight), nil
	default:
		return nil, errors.Errorf("unknown capture source %q", name)
	}
}
