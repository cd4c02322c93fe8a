// Package stream runs the screen streaming loop: capture, pointer overlay,
// downscale, encode and transmit at a target frame rate over a pluggable
// transport.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"gyrodesk/internal/capture"
	"gyrodesk/internal/input"
	"gyrodesk/internal/metrics"
	"gyrodesk/internal/status"
	"gyrodesk/internal/util"
)

// ErrEngineClosed is returned by Start after Close
var ErrEngineClosed = errors.New("stream: engine closed")

// DefaultStopTimeout bounds how long Stop waits for the worker to exit
const DefaultStopTimeout = 500 * time.Millisecond

// Transport carries encoded frames to the viewer
type Transport interface {
	// Name labels logs and metrics
	Name() string
	// Open binds whatever socket the transport needs for target
	Open(target Target) error
	// Ready reports whether a frame sent now could reach a viewer
	Ready() bool
	// Send transmits one encoded frame
	Send(frameSeq uint32, payload []byte) error
	Close() error
}

// Target is where frames go (datagram) or where the viewer connects (websocket)
type Target struct {
	Host string
	Port int
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Options are the per-session stream parameters
type Options struct {
	FPS      int
	MaxWidth int
	Quality  float32
}

// Period returns the nominal time between iteration starts
func (o Options) Period() time.Duration {
	fps := o.FPS
	if fps <= 0 {
		fps = 1
	}
	ms := 1000 / fps
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// Config wires an Engine to its collaborators
type Config struct {
	Source       capture.FrameSource
	Encoder      capture.Encoder
	Locator      input.CursorLocator // nil disables the pointer marker
	NewTransport func() Transport
	Observer     status.Observer
	StopTimeout  time.Duration
}

// Snapshot describes the engine for the status API
type Snapshot struct {
	Transport  string    `json:"transport"`
	Active     bool      `json:"active"`
	Target     string    `json:"target,omitempty"`
	FPS        int       `json:"fps,omitempty"`
	MaxWidth   int       `json:"maxWidth,omitempty"`
	Quality    float32   `json:"quality,omitempty"`
	Ready      bool      `json:"ready"`
	FrameSeq   uint32    `json:"frameSeq"`
	FramesSent uint64    `json:"framesSent"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

type session struct {
	target    Target
	opts      Options
	transport Transport
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// Engine owns at most one streaming session. Start and Stop are serialized by
// mu; the worker never takes mu.
type Engine struct {
	name   string
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	current *session
	closed  bool

	seq  atomic.Uint32
	sent atomic.Uint64
}

// NewEngine creates an idle engine. name labels logs and metrics.
func NewEngine(name string, cfg Config) *Engine {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Observer == nil {
		cfg.Observer = status.Nop{}
	}
	return &Engine{
		name:   name,
		cfg:    cfg,
		logger: util.GetLogger().With("component", "stream", "transport", name),
	}
}

// Name returns the label given to NewEngine
func (e *Engine) Name() string { return e.name }

// Start begins streaming to target. It reports false without error when a
// session is already active; the running session is left untouched.
func (e *Engine) Start(target Target, opts Options) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false, ErrEngineClosed
	}
	if e.current != nil {
		e.logger.Debug("Start ignored, already streaming", "target", e.current.target.String())
		return false, nil
	}

	t := e.cfg.NewTransport()
	if err := t.Open(target); err != nil {
		return false, errors.Wrapf(err, "open %s transport for %s", e.name, target)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		target:    target,
		opts:      opts,
		transport: t,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	e.current = s
	go e.run(ctx, s)

	e.logger.Info("Streaming started", "target", target.String(), "fps", opts.FPS, "max_width", opts.MaxWidth, "quality", opts.Quality)
	e.cfg.Observer.OnLog(fmt.Sprintf("%s stream started: %s @ %d fps", e.name, target, opts.FPS))
	return true, nil
}

// Stop ends the active session, waiting up to StopTimeout for the worker to
// exit before closing the transport. It reports false when already idle.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() bool {
	s := e.current
	if s == nil {
		return false
	}
	e.current = nil

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(e.cfg.StopTimeout):
		e.logger.Warn("Worker did not exit in time, closing transport anyway", "timeout", e.cfg.StopTimeout)
	}
	if err := s.transport.Close(); err != nil {
		e.logger.Debug("Transport close failed", "error", err)
	}

	e.logger.Info("Streaming stopped", "target", s.target.String())
	e.cfg.Observer.OnLog(e.name + " stream stopped")
	return true
}

// Close stops any session and rejects further starts
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.closed = true
}

// Active reports whether a session is running
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Snapshot returns the current engine state
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Transport:  e.name,
		FrameSeq:   e.seq.Load(),
		FramesSent: e.sent.Load(),
	}
	if s := e.current; s != nil {
		snap.Active = true
		snap.Target = s.target.String()
		snap.FPS = s.opts.FPS
		snap.MaxWidth = s.opts.MaxWidth
		snap.Quality = s.opts.Quality
		snap.Ready = s.transport.Ready()
		snap.StartedAt = s.startedAt
	}
	return snap
}

func (e *Engine) run(ctx context.Context, s *session) {
	defer close(s.done)

	period := s.opts.Period()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	var failing bool
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()

		if err := e.iterate(s); err != nil {
			e.logger.Warn("Frame dropped", "error", err)
			if !failing {
				e.cfg.Observer.OnLog(fmt.Sprintf("%s stream: %v", e.name, err))
			}
			failing = true
		} else {
			failing = false
		}
		metrics.IterationSeconds.WithLabelValues(e.name).Observe(time.Since(start).Seconds())

		wait := period - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// iterate runs one capture/encode/send step. A nil return with nothing sent
// means no viewer was attached.
func (e *Engine) iterate(s *session) error {
	if !s.transport.Ready() {
		metrics.Frames.WithLabelValues(e.name, "skipped").Inc()
		return nil
	}

	raw, err := e.cfg.Source.Capture()
	if err != nil {
		metrics.Frames.WithLabelValues(e.name, "capture_error").Inc()
		return errors.Wrap(err, "capture")
	}

	img := raw.Image
	if e.cfg.Locator != nil {
		if x, y, err := e.cfg.Locator.Location(); err == nil {
			img = capture.OverlayPointer(raw, x, y)
		} else {
			e.logger.Debug("Cursor location unavailable", "error", err)
		}
	}
	img = capture.Downscale(img, s.opts.MaxWidth)

	data, err := e.cfg.Encoder.Encode(img, s.opts.Quality)
	if err != nil {
		metrics.Frames.WithLabelValues(e.name, "encode_error").Inc()
		return errors.Wrap(err, "encode")
	}
	if len(data) == 0 {
		metrics.Frames.WithLabelValues(e.name, "encode_error").Inc()
		return errors.New("encode: empty frame")
	}

	seq := e.seq.Add(1) - 1
	metrics.FrameBytes.WithLabelValues(e.name).Observe(float64(len(data)))
	if err := s.transport.Send(seq, data); err != nil {
		metrics.Frames.WithLabelValues(e.name, "send_error").Inc()
		return errors.Wrap(err, "send")
	}
	e.sent.Add(1)
	metrics.Frames.WithLabelValues(e.name, "sent").Inc()
	return nil
}
