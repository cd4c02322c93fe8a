package input

import "strconv"

// keyName holds the per-strategy spelling of one virtual key.
type keyName struct {
	xdo   string // X keysym used by xdotool
	robot string // robotgo key name
}

// keymap is keyed by the virtual key codes the handheld client sends
// (AWT KeyEvent.VK_* values).
var keymap = map[int]keyName{
	8:   {"BackSpace", "backspace"},
	9:   {"Tab", "tab"},
	10:  {"Return", "enter"},
	16:  {"shift", "shift"},
	17:  {"ctrl", "ctrl"},
	18:  {"alt", "alt"},
	20:  {"Caps_Lock", "capslock"},
	27:  {"Escape", "esc"},
	32:  {"space", "space"},
	33:  {"Prior", "pageup"},
	34:  {"Next", "pagedown"},
	35:  {"End", "end"},
	36:  {"Home", "home"},
	37:  {"Left", "left"},
	38:  {"Up", "up"},
	39:  {"Right", "right"},
	40:  {"Down", "down"},
	44:  {"comma", ","},
	45:  {"minus", "-"},
	46:  {"period", "."},
	47:  {"slash", "/"},
	59:  {"semicolon", ";"},
	61:  {"equal", "="},
	91:  {"bracketleft", "["},
	92:  {"backslash", "\\"},
	93:  {"bracketright", "]"},
	127: {"Delete", "delete"},
	155: {"Insert", "insert"},
	157: {"super", "cmd"},
	192: {"grave", "`"},
	222: {"apostrophe", "'"},
	524: {"super", "cmd"},
}

func init() {
	for c := '0'; c <= '9'; c++ {
		keymap[int(c)] = keyName{string(c), string(c)}
	}
	for c := 'A'; c <= 'Z'; c++ {
		lower := string(c + ('a' - 'A'))
		keymap[int(c)] = keyName{lower, lower}
	}
	// F1..F12 are 112..123
	for i := 0; i < 12; i++ {
		n := strconv.Itoa(i + 1)
		keymap[112+i] = keyName{"F" + n, "f" + n}
	}
}

func lookupKey(code int) (keyName, bool) {
	k, ok := keymap[code]
	return k, ok
}
