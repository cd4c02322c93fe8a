// Package network accepts the handheld's control connection, enforces the
// single-client takeover policy and runs the per-connection control session.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gyrodesk/internal/metrics"
	"gyrodesk/internal/sockopt"
	"gyrodesk/internal/status"
	"gyrodesk/internal/util"
)

// Defaults for Config fields left zero
const (
	DefaultAcceptBackoff    = 100 * time.Millisecond
	DefaultMaxAcceptBackoff = 300 * time.Millisecond
	DefaultTakeoverTimeout  = 2 * time.Second
)

// Config tunes the accept loop
type Config struct {
	AcceptBackoff    time.Duration
	MaxAcceptBackoff time.Duration
	TakeoverTimeout  time.Duration
}

// Manager owns the client slot. At most one session is current; a new
// connection always evicts the previous one.
type Manager struct {
	cfg      Config
	handlers Handlers
	observer status.Observer
	logger   *slog.Logger

	mu      sync.Mutex
	current *Session

	sessions sync.WaitGroup
}

// NewManager creates a connection manager
func NewManager(cfg Config, h Handlers, obs status.Observer) *Manager {
	if cfg.AcceptBackoff <= 0 {
		cfg.AcceptBackoff = DefaultAcceptBackoff
	}
	if cfg.MaxAcceptBackoff < cfg.AcceptBackoff {
		cfg.MaxAcceptBackoff = max(DefaultMaxAcceptBackoff, cfg.AcceptBackoff)
	}
	if cfg.TakeoverTimeout <= 0 {
		cfg.TakeoverTimeout = DefaultTakeoverTimeout
	}
	if obs == nil {
		obs = status.Nop{}
	}
	return &Manager{
		cfg:      cfg,
		handlers: h,
		observer: obs,
		logger:   util.GetLogger().With("component", "control"),
	}
}

// ListenAndServe listens on addr and serves until ctx is done
func (m *Manager) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := sockopt.Listen(ctx, addr)
	if err != nil {
		m.observer.OnStatus(status.Error(err.Error()))
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return m.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is done. Accept errors are
// reported and retried with a bounded backoff; they never end the loop.
// On return every session has finished.
func (m *Manager) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer m.shutdown()

	m.announce(ln.Addr())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				m.observer.OnStatus(status.Error("listener closed"))
				return errors.Wrap(err, "accept")
			}

			backoff = nextBackoff(backoff, m.cfg.AcceptBackoff, m.cfg.MaxAcceptBackoff)
			m.logger.Error("Accept failed", "error", err, "retry_in", backoff)
			m.observer.OnStatus(status.Error(err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		m.install(conn)
	}
}

func nextBackoff(cur, initial, limit time.Duration) time.Duration {
	if cur <= 0 {
		return initial
	}
	if cur*2 > limit {
		return limit
	}
	return cur * 2
}

func (m *Manager) announce(addr net.Addr) {
	m.observer.OnStatus(status.Listening)

	ips, err := GetLocalIPs()
	if err != nil || len(ips) == 0 {
		m.logger.Info("Listening for control connections", "addr", addr.String())
		return
	}
	port := addr.(*net.TCPAddr).Port
	m.logger.Info("Listening for control connections", "addr", addr.String(), "ips", strings.Join(ips, ","))
	m.observer.OnLog(fmt.Sprintf("connect the handheld to %s port %d", strings.Join(ips, " or "), port))
}

// install makes conn the current client and runs its session. Eviction and
// the new session's start happen on the session's goroutine so a slow
// teardown never blocks Accept.
func (m *Manager) install(conn net.Conn) {
	s := newSession(conn, m.handlers, m.observer, m.logger)

	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()

	m.sessions.Add(1)
	go func() {
		defer m.sessions.Done()
		if prev != nil {
			m.evict(prev)
		}
		m.runSession(s)
	}()
}

// evict closes the previous occupant and waits for it to finish cleaning up
func (m *Manager) evict(prev *Session) {
	metrics.Takeovers.Inc()
	m.logger.Info("New client takes over", "previous", prev.info.Addr)
	prev.conn.Close()
	select {
	case <-prev.done:
	case <-time.After(m.cfg.TakeoverTimeout):
		m.logger.Warn("Previous session did not finish in time", "previous", prev.info.Addr, "timeout", m.cfg.TakeoverTimeout)
	}
}

func (m *Manager) runSession(s *Session) {
	defer close(s.done)

	if m.handlers.Motion != nil {
		m.handlers.Motion.Reset()
	}
	metrics.SessionsActive.Inc()
	s.logger.Info("Client connected")
	m.observer.OnStatus(status.Connected(s.info.Addr))

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Session panic", "panic", r)
		}
		s.conn.Close()
		s.stopStreams()
		m.release(s)
		metrics.SessionsActive.Dec()
		s.logger.Info("Client disconnected")
		m.observer.OnStatus(status.Disconnected)
	}()

	if err := s.run(); err != nil {
		s.logger.Debug("Control connection ended", "error", err)
	}
}

// release frees the slot if s still holds it
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == s {
		m.current = nil
	}
}

// Current returns the connected client, if any
func (m *Manager) Current() (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return SessionInfo{}, false
	}
	return m.current.info, true
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s != nil {
		s.conn.Close()
	}
	m.sessions.Wait()
}
