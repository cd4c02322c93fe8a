package input

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRun struct {
	calls []string
	out   []byte
	err   error
}

func (f *fakeRun) run(args ...string) ([]byte, error) {
	f.calls = append(f.calls, strings.Join(args, " "))
	return f.out, f.err
}

func newFakeXdotool() (*XdotoolActuator, *fakeRun) {
	f := &fakeRun{}
	return &XdotoolActuator{run: f.run}, f
}

func TestXdotoolCommands(t *testing.T) {
	x, f := newFakeXdotool()

	require.NoError(t, x.MoveBy(5, -3))
	require.NoError(t, x.Click(ButtonLeft))
	require.NoError(t, x.Click(ButtonRight))
	require.NoError(t, x.Type("héllo wörld"))
	require.NoError(t, x.Type(""))
	require.NoError(t, x.Tap(10))
	require.NoError(t, x.Press(16))
	require.NoError(t, x.Release(16))
	require.NoError(t, x.Tap('A'))
	require.NoError(t, x.Tap(115))

	assert.Equal(t, []string{
		"mousemove_relative -- 5 -3",
		"click 1",
		"click 3",
		"type --clearmodifiers -- héllo wörld",
		"key Return",
		"keydown shift",
		"keyup shift",
		"key a",
		"key F4",
	}, f.calls)
}

func TestXdotoolUnknownKey(t *testing.T) {
	x, f := newFakeXdotool()
	err := x.Tap(99999)
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Empty(t, f.calls)
}

func TestXdotoolErrorsPropagate(t *testing.T) {
	x, f := newFakeXdotool()
	f.err = errors.New("no display")
	assert.Error(t, x.MoveBy(1, 1))
	_, _, err := x.Location()
	assert.Error(t, err)
}

func TestXdotoolLocation(t *testing.T) {
	x, f := newFakeXdotool()
	f.out = []byte("X=1204\nY=-38\nSCREEN=0\nWINDOW=62914567\n")

	px, py, err := x.Location()
	require.NoError(t, err)
	assert.Equal(t, 1204, px)
	assert.Equal(t, -38, py)
	assert.Equal(t, []string{"getmouselocation --shell"}, f.calls)
}

func TestParseShellLocationRejectsGarbage(t *testing.T) {
	_, _, err := parseShellLocation([]byte("X=12\n"))
	assert.Error(t, err)
	_, _, err = parseShellLocation([]byte("nothing here"))
	assert.Error(t, err)
}

func TestKeymap(t *testing.T) {
	tests := []struct {
		code  int
		xdo   string
		robot string
	}{
		{8, "BackSpace", "backspace"},
		{'0', "0", "0"},
		{'Z', "z", "z"},
		{112, "F1", "f1"},
		{123, "F12", "f12"},
		{27, "Escape", "esc"},
	}
	for _, tt := range tests {
		k, ok := lookupKey(tt.code)
		require.True(t, ok, "code %d", tt.code)
		assert.Equal(t, tt.xdo, k.xdo)
		assert.Equal(t, tt.robot, k.robot)
	}
	_, ok := lookupKey(-1)
	assert.False(t, ok)
}

func TestButtonString(t *testing.T) {
	assert.Equal(t, "left", ButtonLeft.String())
	assert.Equal(t, "center", ButtonMiddle.String())
	assert.Equal(t, "right", ButtonRight.String())
}

func stubLookPath(t *testing.T, found bool) {
	t.Helper()
	orig := lookPath
	lookPath = func(file string) (string, error) {
		if found {
			return "/usr/bin/" + file, nil
		}
		return "", exec.ErrNotFound
	}
	t.Cleanup(func() { lookPath = orig })
}

type stubRobotActuator struct{ *LogActuator }

func (stubRobotActuator) Name() string { return "robotgo" }

func stubRobot(t *testing.T, available bool) {
	t.Helper()
	orig := newRobotActuator
	if available {
		newRobotActuator = func() Actuator { return stubRobotActuator{NewLogActuator()} }
	} else {
		newRobotActuator = nil
	}
	t.Cleanup(func() { newRobotActuator = orig })
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		xdotool  bool
		robot    bool
		want     string
		wantErr  bool
	}{
		{"auto prefers xdotool", StrategyAuto, true, true, "xdotool", false},
		{"auto falls back to robotgo", StrategyAuto, false, true, "robotgo", false},
		{"auto falls back to log", "", false, false, "log", false},
		{"explicit xdotool", StrategyXdotool, true, false, "xdotool", false},
		{"explicit xdotool missing", StrategyXdotool, false, false, "", true},
		{"explicit robotgo missing", StrategyRobotgo, true, false, "", true},
		{"explicit log", StrategyLog, true, true, "log", false},
		{"unknown", "magic", true, true, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubLookPath(t, tt.xdotool)
			stubRobot(t, tt.robot)

			a, err := Select(tt.strategy)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Name())
		})
	}
}

func TestLogActuatorNeverFails(t *testing.T) {
	l := NewLogActuator()
	assert.NoError(t, l.MoveBy(1, 2))
	assert.NoError(t, l.Click(ButtonLeft))
	assert.NoError(t, l.Type("x"))
	assert.NoError(t, l.Tap(1))
	assert.NoError(t, l.Press(1))
	assert.NoError(t, l.Release(1))
}
