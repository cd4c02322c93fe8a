package motion

import (
	stderrors "errors"
	"sync"

	"github.com/pkg/errors"

	"gyrodesk/internal/input"
)

// Processor owns one filter State and forwards filtered deltas to a pointer.
// Calls are serialized; a control session feeds it one sample at a time.
type Processor struct {
	mu      sync.Mutex
	cfg     Config
	state   State
	last    Sample
	pointer input.PointerActuator
}

// NewProcessor creates a processor. cfg must already be validated.
func NewProcessor(cfg Config, pointer input.PointerActuator) *Processor {
	return &Processor{cfg: cfg, pointer: pointer}
}

// Handle filters a sample, moves the pointer when the rounded delta is
// non-zero and issues any requested clicks. Clicks are issued even when the
// delta is (0,0). Actuator errors are returned joined but do not stop the
// remaining actions.
func (p *Processor) Handle(s Sample) (dx, dy int, err error) {
	p.mu.Lock()
	dx, dy, p.state = Apply(s, p.cfg, p.state)
	p.last = s
	p.mu.Unlock()

	var errs []error
	if dx != 0 || dy != 0 {
		if e := p.pointer.MoveBy(dx, dy); e != nil {
			errs = append(errs, errors.Wrap(e, "move"))
		}
	}
	if s.LeftClick {
		if e := p.pointer.Click(input.ButtonLeft); e != nil {
			errs = append(errs, errors.Wrap(e, "left click"))
		}
	}
	if s.RightClick {
		if e := p.pointer.Click(input.ButtonRight); e != nil {
			errs = append(errs, errors.Wrap(e, "right click"))
		}
	}
	return dx, dy, stderrors.Join(errs...)
}

// Config returns the active configuration
func (p *Processor) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// SetConfig replaces the configuration. The smoothing state is kept unless
// reset is true.
func (p *Processor) SetConfig(cfg Config, reset bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	if reset {
		p.state = State{}
	}
	return nil
}

// Reload applies settings re-read from the config file. prev is the file's
// previous motion config. Calibration set at runtime through Calibrate is
// kept unless the file's calibration itself changed.
func (p *Processor) Reload(prev, next Config) error {
	if err := next.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if next.CalibX == prev.CalibX && next.CalibY == prev.CalibY {
		next.CalibX, next.CalibY = p.cfg.CalibX, p.cfg.CalibY
	}
	p.cfg = next
	return nil
}

// Calibrate sets the calibration offsets and clears the smoothing state.
func (p *Processor) Calibrate(x, y float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.CalibX = x
	p.cfg.CalibY = y
	p.state = State{}
}

// CalibrateFromLast uses the most recent raw sample as the resting offset.
func (p *Processor) CalibrateFromLast() (x, y float64) {
	p.mu.Lock()
	x, y = p.last.GyroX, p.last.GyroY
	p.mu.Unlock()
	p.Calibrate(x, y)
	return x, y
}

// Reset clears the smoothing state
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = State{}
}

// State returns a copy of the smoothing state
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
