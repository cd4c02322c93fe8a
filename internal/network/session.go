package network

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"gyrodesk/internal/input"
	"gyrodesk/internal/metrics"
	"gyrodesk/internal/motion"
	"gyrodesk/internal/protocol"
	"gyrodesk/internal/status"
	"gyrodesk/internal/stream"
)

const maxLineSize = 64 * 1024

var errLineTooLong = errors.New("line exceeds 64KiB")

// StreamEngine is the lifecycle the session drives for each stream kind
type StreamEngine interface {
	Start(target stream.Target, opts stream.Options) (bool, error)
	Stop() bool
}

// Handlers are the collaborators a control session dispatches to. Nil
// engines or Keys disable the corresponding commands.
type Handlers struct {
	Motion    *motion.Processor
	Keys      input.KeyActuator
	Datagram  StreamEngine
	WebSocket StreamEngine

	// StreamDefaults fill fields a start command omits. Zero means
	// protocol.DefaultParams.
	StreamDefaults protocol.StreamParams
}

// SessionInfo describes the connected client for the status API
type SessionInfo struct {
	ID          string    `json:"id"`
	Addr        string    `json:"addr"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Session reads one control connection line by line and dispatches each
// message in arrival order.
type Session struct {
	info     SessionInfo
	conn     net.Conn
	peerIP   string
	handlers Handlers
	observer status.Observer
	logger   *slog.Logger

	// streams this session started and must stop on exit
	started map[protocol.Kind]StreamEngine

	done chan struct{}
}

func newSession(conn net.Conn, h Handlers, obs status.Observer, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		info: SessionInfo{
			ID:          id,
			Addr:        conn.RemoteAddr().String(),
			ConnectedAt: time.Now(),
		},
		conn:     conn,
		peerIP:   hostOf(conn.RemoteAddr()),
		handlers: h,
		observer: obs,
		logger:   logger.With("session", id, "client", conn.RemoteAddr().String()),
		started:  make(map[protocol.Kind]StreamEngine),
		done:     make(chan struct{}),
	}
}

// Info returns the session's identity
func (s *Session) Info() SessionInfo { return s.info }

// Done is closed once the session has fully cleaned up
func (s *Session) Done() <-chan struct{} { return s.done }

// run reads until EOF or error. The final line may lack a newline.
func (s *Session) run() error {
	r := bufio.NewReaderSize(s.conn, maxLineSize)
	for {
		line, err := readLine(r)
		if errors.Is(err, errLineTooLong) {
			s.reject(err)
			continue
		}
		if len(line) > 0 {
			s.dispatch(line)
		}
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err != bufio.ErrBufferFull {
		return line, err
	}
	for err == bufio.ErrBufferFull {
		_, err = r.ReadSlice('\n')
	}
	if err != nil {
		return nil, err
	}
	return nil, errLineTooLong
}

func (s *Session) dispatch(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	msg, err := protocol.Parse(line)
	if err != nil {
		s.reject(err)
		return
	}
	metrics.Messages.WithLabelValues(string(msg.Kind)).Inc()

	switch msg.Kind {
	case protocol.KindMotion:
		s.handleMotion(*msg.Motion)
	case protocol.KindStream:
		s.handleStream(msg.Kind, s.handlers.Datagram, s.peerIP, msg.Stream)
	case protocol.KindWebSocket:
		// the viewer connects to us, so listen on every interface
		s.handleStream(msg.Kind, s.handlers.WebSocket, "", msg.Stream)
	case protocol.KindKeyboard:
		s.handleKeyboard(msg.Keyboard)
	case protocol.KindCalibrate:
		s.handleCalibrate(msg.Calibrate)
	}
}

func (s *Session) reject(err error) {
	metrics.Messages.WithLabelValues("invalid").Inc()
	s.logger.Warn("Discarding control line", "error", err)
	s.observer.OnLog("protocol error: " + err.Error())
}

func (s *Session) handleMotion(sample motion.Sample) {
	if s.handlers.Motion == nil {
		return
	}
	if _, _, err := s.handlers.Motion.Handle(sample); err != nil {
		s.logger.Warn("Pointer actuation failed", "error", err)
	}
}

func (s *Session) handleStream(kind protocol.Kind, eng StreamEngine, host string, cmd *protocol.StreamCommand) {
	if eng == nil {
		s.logger.Warn("Streaming not available", "kind", kind)
		return
	}

	if cmd.Cmd == protocol.CmdStop {
		eng.Stop()
		delete(s.started, kind)
		return
	}

	defaults := s.handlers.StreamDefaults
	if defaults == (protocol.StreamParams{}) {
		defaults = protocol.DefaultParams()
	}
	p := cmd.ParamsWith(defaults)
	target := stream.Target{Host: host, Port: p.Port}
	started, err := eng.Start(target, stream.Options{FPS: p.FPS, MaxWidth: p.MaxWidth, Quality: p.Quality})
	if err != nil {
		s.logger.Error("Failed to start stream", "kind", kind, "error", err)
		s.observer.OnLog(fmt.Sprintf("%s stream failed: %v", kind, err))
		return
	}
	if started {
		s.started[kind] = eng
	}
}

func (s *Session) handleKeyboard(cmd *protocol.KeyboardCommand) {
	keys := s.handlers.Keys
	if keys == nil {
		return
	}

	var err error
	switch cmd.Cmd {
	case protocol.KeyCmdType:
		err = keys.Type(*cmd.Text)
	case protocol.KeyCmdTap:
		err = keys.Tap(*cmd.KeyCode)
	case protocol.KeyCmdPress:
		err = keys.Press(*cmd.KeyCode)
	case protocol.KeyCmdRelease:
		err = keys.Release(*cmd.KeyCode)
	}
	if err != nil {
		s.logger.Warn("Keyboard actuation failed", "cmd", cmd.Cmd, "error", err)
	}
}

func (s *Session) handleCalibrate(cmd *protocol.CalibrateCommand) {
	p := s.handlers.Motion
	if p == nil {
		return
	}

	var x, y float64
	if cmd.X == nil && cmd.Y == nil {
		x, y = p.CalibrateFromLast()
	} else {
		cfg := p.Config()
		x, y = cfg.CalibX, cfg.CalibY
		if cmd.X != nil {
			x = *cmd.X
		}
		if cmd.Y != nil {
			y = *cmd.Y
		}
		p.Calibrate(x, y)
	}
	s.logger.Info("Calibrated", "calib_x", x, "calib_y", y)
	s.observer.OnLog(fmt.Sprintf("calibrated: x=%.3f y=%.3f", x, y))
}

// stopStreams stops every stream this session started
func (s *Session) stopStreams() {
	for kind, eng := range s.started {
		eng.Stop()
		delete(s.started, kind)
	}
}
