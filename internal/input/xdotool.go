package input

import (
	"bufio"
	"bytes"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// runFunc executes the xdotool binary with args and returns its stdout.
type runFunc func(args ...string) ([]byte, error)

// XdotoolActuator drives the X11 desktop by shelling out to xdotool.
// It is the preferred strategy on Linux when the tool is installed.
type XdotoolActuator struct {
	run runFunc
}

// NewXdotoolActuator creates an actuator using the xdotool binary at path
func NewXdotoolActuator(path string) *XdotoolActuator {
	return &XdotoolActuator{
		run: func(args ...string) ([]byte, error) {
			out, err := exec.Command(path, args...).Output()
			if err != nil {
				return nil, errors.Wrapf(err, "xdotool %s", strings.Join(args, " "))
			}
			return out, nil
		},
	}
}

// Name returns the strategy name
func (x *XdotoolActuator) Name() string { return "xdotool" }

// MoveBy moves the pointer relative to its current position
func (x *XdotoolActuator) MoveBy(dx, dy int) error {
	_, err := x.run("mousemove_relative", "--", strconv.Itoa(dx), strconv.Itoa(dy))
	return err
}

// Click presses and releases a mouse button
func (x *XdotoolActuator) Click(button Button) error {
	_, err := x.run("click", strconv.Itoa(int(button)))
	return err
}

// Location returns the absolute pointer position
func (x *XdotoolActuator) Location() (int, int, error) {
	out, err := x.run("getmouselocation", "--shell")
	if err != nil {
		return 0, 0, err
	}
	return parseShellLocation(out)
}

// parseShellLocation parses the X=/Y= lines printed by `getmouselocation --shell`.
func parseShellLocation(out []byte) (int, int, error) {
	var x, y int
	var gotX, gotY bool
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		switch k {
		case "X":
			x, gotX = n, true
		case "Y":
			y, gotY = n, true
		}
	}
	if !gotX || !gotY {
		return 0, 0, errors.Errorf("xdotool: unexpected location output %q", out)
	}
	return x, y, nil
}

// Type types free text. xdotool handles any unicode text itself, so no
// clipboard fallback is needed here.
func (x *XdotoolActuator) Type(text string) error {
	if text == "" {
		return nil
	}
	_, err := x.run("type", "--clearmodifiers", "--", text)
	return err
}

// Tap presses and releases one key
func (x *XdotoolActuator) Tap(keyCode int) error {
	return x.key("key", keyCode)
}

// Press holds a key down
func (x *XdotoolActuator) Press(keyCode int) error {
	return x.key("keydown", keyCode)
}

// Release lets go of a held key
func (x *XdotoolActuator) Release(keyCode int) error {
	return x.key("keyup", keyCode)
}

func (x *XdotoolActuator) key(cmd string, keyCode int) error {
	k, ok := lookupKey(keyCode)
	if !ok {
		return errors.Wrapf(ErrUnknownKey, "code %d", keyCode)
	}
	_, err := x.run(cmd, k.xdo)
	return err
}
