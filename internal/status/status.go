// Package status carries one-way lifecycle and log notifications from the
// control plane to whatever is displaying them. Observers never feed back
// into the control plane.
package status

import (
	"strings"
	"sync"
)

// Status values reported by the connection manager
const (
	Listening    = "listening"
	Disconnected = "disconnected"
)

// Connected returns the status for a newly installed client
func Connected(addr string) string { return "connected:" + addr }

// Error returns the status for a transport or accept failure
func Error(detail string) string { return "error:" + detail }

// IsConnected reports whether s is a connected:<addr> status
func IsConnected(s string) bool { return strings.HasPrefix(s, "connected:") }

// Observer receives status transitions and log lines. Implementations must be
// safe for concurrent use and must not block for long.
type Observer interface {
	OnStatus(status string)
	OnLog(msg string)
}

// Multi fans notifications out to several observers in order
type Multi []Observer

func (m Multi) OnStatus(s string) {
	for _, o := range m {
		if o != nil {
			o.OnStatus(s)
		}
	}
}

func (m Multi) OnLog(msg string) {
	for _, o := range m {
		if o != nil {
			o.OnLog(msg)
		}
	}
}

// Nop discards everything
type Nop struct{}

func (Nop) OnStatus(string) {}
func (Nop) OnLog(string)    {}

const (
	maxHistory = 64
	maxLogs    = 200
)

// Tracker remembers the current status plus bounded status and log history.
type Tracker struct {
	mu       sync.Mutex
	current  string
	statuses []string
	logs     []string
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) OnStatus(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = s
	t.statuses = appendBounded(t.statuses, s, maxHistory)
}

func (t *Tracker) OnLog(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs = appendBounded(t.logs, msg, maxLogs)
}

// Current returns the last reported status
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Statuses returns a copy of the status history, oldest first
func (t *Tracker) Statuses() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.statuses...)
}

// Logs returns a copy of the log history, oldest first
func (t *Tracker) Logs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.logs...)
}

func appendBounded(s []string, v string, max int) []string {
	s = append(s, v)
	if len(s) > max {
		s = append(s[:0], s[len(s)-max:]...)
	}
	return s
}
