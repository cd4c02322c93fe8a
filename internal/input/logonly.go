package input

import (
	"log/slog"

	"gyrodesk/internal/util"
)

// LogActuator performs no injection and only logs what it would have done.
// It is the last-resort strategy when nothing native is available.
type LogActuator struct {
	logger *slog.Logger
}

// NewLogActuator creates a dry-run actuator
func NewLogActuator() *LogActuator {
	return &LogActuator{logger: util.GetLogger().With("component", "input", "strategy", "log")}
}

// Name returns the strategy name
func (l *LogActuator) Name() string { return "log" }

func (l *LogActuator) MoveBy(dx, dy int) error {
	l.logger.Debug("Pointer move", "dx", dx, "dy", dy)
	return nil
}

func (l *LogActuator) Click(button Button) error {
	l.logger.Info("Pointer click", "button", button.String())
	return nil
}

func (l *LogActuator) Type(text string) error {
	l.logger.Info("Type text", "length", len(text))
	return nil
}

func (l *LogActuator) Tap(keyCode int) error {
	l.logger.Info("Key tap", "code", keyCode)
	return nil
}

func (l *LogActuator) Press(keyCode int) error {
	l.logger.Info("Key press", "code", keyCode)
	return nil
}

func (l *LogActuator) Release(keyCode int) error {
	l.logger.Info("Key release", "code", keyCode)
	return nil
}
