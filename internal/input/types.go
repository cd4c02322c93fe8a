// Package input provides pointer and keyboard actuation on the desktop.
//
// The control plane only talks to the PointerActuator and KeyActuator
// interfaces. The concrete strategy (xdotool, robotgo, or a log-only dry run)
// is picked once at startup by Select and never re-branched per call.
package input

import "github.com/pkg/errors"

// Button identifies a mouse button. Values follow the X11 numbering.
type Button int

const (
	ButtonLeft   Button = 1
	ButtonMiddle Button = 2
	ButtonRight  Button = 3
)

// String returns the lowercase button name
func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "center"
	case ButtonRight:
		return "right"
	default:
		return "unknown"
	}
}

// ErrUnknownKey is returned when a key code has no mapping for the active strategy
var ErrUnknownKey = errors.New("input: unknown key code")

// PointerActuator moves the pointer and clicks buttons.
type PointerActuator interface {
	MoveBy(dx, dy int) error
	Click(button Button) error
}

// CursorLocator reports the absolute pointer position in virtual-desktop
// coordinates. Strategies that can answer implement it alongside PointerActuator.
type CursorLocator interface {
	Location() (x, y int, err error)
}

// KeyActuator injects keyboard input. Key codes are the virtual key codes
// sent by the handheld client (see keymap.go).
type KeyActuator interface {
	Type(text string) error
	Tap(keyCode int) error
	Press(keyCode int) error
	Release(keyCode int) error
}

// Actuator is a strategy implementing both pointer and keyboard injection.
type Actuator interface {
	PointerActuator
	KeyActuator
	Name() string
}
