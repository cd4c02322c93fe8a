//go:build robotgo

package input

import (
	"runtime"
	"unicode"

	"github.com/go-vgo/robotgo"
	"github.com/pkg/errors"
)

var (
	keyTap    = robotgo.KeyTap
	keyToggle = robotgo.KeyToggle
)

func init() {
	newRobotActuator = func() Actuator { return NewRobotActuator() }
}

// RobotActuator injects input through robotgo (cgo). It works on every
// desktop platform robotgo supports and is the fallback when xdotool is absent.
type RobotActuator struct {
	pasteModifier string
}

// NewRobotActuator creates a robotgo-backed actuator
func NewRobotActuator() *RobotActuator {
	mod := "ctrl"
	if runtime.GOOS == "darwin" {
		mod = "cmd"
	}
	return &RobotActuator{pasteModifier: mod}
}

// Name returns the strategy name
func (r *RobotActuator) Name() string { return "robotgo" }

func (r *RobotActuator) MoveBy(dx, dy int) error {
	robotgo.MoveRelative(dx, dy)
	return nil
}

func (r *RobotActuator) Click(button Button) error {
	robotgo.Click(button.String())
	return nil
}

// Location returns the absolute pointer position
func (r *RobotActuator) Location() (int, int, error) {
	x, y := robotgo.Location()
	return x, y, nil
}

// Type types ASCII text key by key and pastes anything else through the clipboard.
func (r *RobotActuator) Type(text string) error {
	if text == "" {
		return nil
	}
	if isTypeable(text) {
		robotgo.TypeStr(text)
		return nil
	}
	if err := robotgo.WriteAll(text); err != nil {
		return errors.Wrap(err, "clipboard write failed")
	}
	return errors.Wrap(keyTap("v", r.pasteModifier), "paste")
}

func (r *RobotActuator) Tap(keyCode int) error {
	k, ok := lookupKey(keyCode)
	if !ok {
		return errors.Wrapf(ErrUnknownKey, "code %d", keyCode)
	}
	return errors.Wrap(keyTap(k.robot), "key tap")
}

func (r *RobotActuator) Press(keyCode int) error {
	return r.toggle(keyCode, "down")
}

func (r *RobotActuator) Release(keyCode int) error {
	return r.toggle(keyCode, "up")
}

func (r *RobotActuator) toggle(keyCode int, dir string) error {
	k, ok := lookupKey(keyCode)
	if !ok {
		return errors.Wrapf(ErrUnknownKey, "code %d", keyCode)
	}
	return errors.Wrapf(keyToggle(k.robot, dir), "key %s", dir)
}

func isTypeable(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || (!unicode.IsPrint(r) && r != '\n' && r != '\r' && r != '\t') {
			return false
		}
	}
	return true
}
