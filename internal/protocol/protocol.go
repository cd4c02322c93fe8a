// Package protocol defines the control-plane message shapes sent by the
// handheld over the line-delimited JSON stream, and the binary fragment
// header used by the datagram screen stream.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"gyrodesk/internal/motion"
)

// Kind classifies one control line
type Kind string

const (
	KindStream    Kind = "stream"    // datagram streaming control
	KindWebSocket Kind = "websocket" // message-framed streaming control
	KindKeyboard  Kind = "keyboard"
	KindCalibrate Kind = "calibrate"
	KindMotion    Kind = "motion"
)

// Streaming command verbs
const (
	CmdStart = "start"
	CmdStop  = "stop"
)

// Keyboard command verbs
const (
	KeyCmdType    = "type"
	KeyCmdTap     = "tap"
	KeyCmdPress   = "press"
	KeyCmdRelease = "release"
)

// Defaults applied to stream commands with missing numeric fields
const (
	DefaultStreamPort     = 6000
	DefaultStreamFPS      = 12
	DefaultStreamMaxWidth = 1280
	DefaultStreamQuality  = 0.7
)

var (
	// ErrNotObject is returned for lines that are not a JSON object
	ErrNotObject = errors.New("protocol: line is not a JSON object")

	// ErrUnknownCommand is returned for a recognized kind with an unknown cmd
	ErrUnknownCommand = errors.New("protocol: unknown command")

	// ErrMissingField is returned when a command lacks a field it requires
	ErrMissingField = errors.New("protocol: missing required field")
)

// StreamCommand is the payload of {"stream": {...}} and {"websocket": {...}}.
// Pointer fields distinguish "absent" from zero before defaults are applied.
type StreamCommand struct {
	Cmd      string   `json:"cmd"`
	Port     *int     `json:"port,omitempty"`
	FPS      *int     `json:"fps,omitempty"`
	MaxWidth *int     `json:"maxWidth,omitempty"`
	Quality  *float64 `json:"quality,omitempty"`
}

// StreamParams are the resolved parameters of a start command
type StreamParams struct {
	Port     int
	FPS      int
	MaxWidth int
	Quality  float32
}

// DefaultParams returns the parameters used for fields a start command omits
func DefaultParams() StreamParams {
	return StreamParams{
		Port:     DefaultStreamPort,
		FPS:      DefaultStreamFPS,
		MaxWidth: DefaultStreamMaxWidth,
		Quality:  DefaultStreamQuality,
	}
}

// Params resolves the command against DefaultParams
func (c StreamCommand) Params() StreamParams {
	return c.ParamsWith(DefaultParams())
}

// ParamsWith fills missing fields from defaults and clamps quality into
// [0,1]. Non-positive fps and negative maxWidth fall back to the defaults.
func (c StreamCommand) ParamsWith(defaults StreamParams) StreamParams {
	p := defaults
	if c.Port != nil {
		p.Port = *c.Port
	}
	if c.FPS != nil && *c.FPS > 0 {
		p.FPS = *c.FPS
	}
	if c.MaxWidth != nil && *c.MaxWidth >= 0 {
		p.MaxWidth = *c.MaxWidth
	}
	if c.Quality != nil {
		p.Quality = float32(ClampQuality(*c.Quality))
	}
	return p
}

// ClampQuality clamps q into [0,1]
func ClampQuality(q float64) float64 {
	switch {
	case q < 0:
		return 0
	case q > 1:
		return 1
	}
	return q
}

// KeyboardCommand is the payload of {"keyboard": {...}}
type KeyboardCommand struct {
	Cmd     string  `json:"cmd"`
	Text    *string `json:"text,omitempty"`
	KeyCode *int    `json:"keyCode,omitempty"`
}

// Validate checks the verb and its required field
func (c KeyboardCommand) Validate() error {
	switch c.Cmd {
	case KeyCmdType:
		if c.Text == nil {
			return errors.Wrap(ErrMissingField, "type requires text")
		}
	case KeyCmdTap, KeyCmdPress, KeyCmdRelease:
		if c.KeyCode == nil {
			return errors.Wrapf(ErrMissingField, "%s requires keyCode", c.Cmd)
		}
	default:
		return errors.Wrapf(ErrUnknownCommand, "keyboard %q", c.Cmd)
	}
	return nil
}

// CalibrateCommand is the payload of {"calibrate": {...}}. With both offsets
// absent the last received sample becomes the resting position.
type CalibrateCommand struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

// Message is one classified control line. Exactly one payload is set,
// matching Kind.
type Message struct {
	Kind      Kind
	Stream    *StreamCommand
	Keyboard  *KeyboardCommand
	Calibrate *CalibrateCommand
	Motion    *motion.Sample
}

// Parse classifies a control line. Recognized control keys are checked in
// order (stream, websocket, keyboard, calibrate); the first present key wins.
// Any other JSON object is decoded as a motion sample with missing fields
// defaulting to zero/false.
func Parse(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)

	var top map[string]json.RawMessage
	if err := json.Unmarshal(line, &top); err != nil || top == nil {
		return nil, errors.Wrapf(ErrNotObject, "%q", truncate(line, 64))
	}

	if raw, ok := top[string(KindStream)]; ok {
		return parseStream(KindStream, raw)
	}
	if raw, ok := top[string(KindWebSocket)]; ok {
		return parseStream(KindWebSocket, raw)
	}
	if raw, ok := top[string(KindKeyboard)]; ok {
		var kc KeyboardCommand
		if err := json.Unmarshal(raw, &kc); err != nil {
			return nil, errors.Wrap(err, "keyboard payload")
		}
		if err := kc.Validate(); err != nil {
			return nil, err
		}
		return &Message{Kind: KindKeyboard, Keyboard: &kc}, nil
	}
	if raw, ok := top[string(KindCalibrate)]; ok {
		var cc CalibrateCommand
		if err := json.Unmarshal(raw, &cc); err != nil {
			return nil, errors.Wrap(err, "calibrate payload")
		}
		return &Message{Kind: KindCalibrate, Calibrate: &cc}, nil
	}

	var s motion.Sample
	if err := json.Unmarshal(line, &s); err != nil {
		return nil, errors.Wrap(err, "motion sample")
	}
	return &Message{Kind: KindMotion, Motion: &s}, nil
}

func parseStream(kind Kind, raw json.RawMessage) (*Message, error) {
	var sc StreamCommand
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, errors.Wrapf(err, "%s payload", kind)
	}
	if sc.Cmd != CmdStart && sc.Cmd != CmdStop {
		return nil, errors.Wrapf(ErrUnknownCommand, "%s %q", kind, sc.Cmd)
	}
	return &Message{Kind: kind, Stream: &sc}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
