package status

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogObserver writes notifications through slog
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) OnStatus(s string) {
	if strings.HasPrefix(s, "error:") {
		l.Logger.Error("Status changed", "status", s)
		return
	}
	l.Logger.Info("Status changed", "status", s)
}

func (l LogObserver) OnLog(msg string) {
	l.Logger.Info(msg)
}

// ConsoleObserver prints a compact, colored dashboard line per notification.
type ConsoleObserver struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time

	ok   *color.Color
	warn *color.Color
	bad  *color.Color
	dim  *color.Color
}

// NewConsoleObserver creates a console observer writing to out
func NewConsoleObserver(out io.Writer) *ConsoleObserver {
	return &ConsoleObserver{
		out:  out,
		now:  time.Now,
		ok:   color.New(color.FgGreen, color.Bold),
		warn: color.New(color.FgYellow),
		bad:  color.New(color.FgRed, color.Bold),
		dim:  color.New(color.Faint),
	}
}

func (c *ConsoleObserver) OnStatus(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	col := c.warn
	switch {
	case IsConnected(s):
		col = c.ok
	case strings.HasPrefix(s, "error:"):
		col = c.bad
	}
	fmt.Fprintf(c.out, "%s %s\n", c.dim.Sprint(c.now().Format("15:04:05")), col.Sprint("● "+s))
}

func (c *ConsoleObserver) OnLog(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s   %s\n", c.dim.Sprint(c.now().Format("15:04:05")), msg)
}
