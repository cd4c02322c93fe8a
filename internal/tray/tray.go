// Package tray shows the connection status in the system tray using
// getlantern/systray and offers stop-streaming and quit actions.
package tray

import (
	"strings"
	"sync"

	"github.com/getlantern/systray"

	"gyrodesk/internal/status"
)

// MenuItem represents a menu item
type MenuItem struct {
	Title    string
	Callback func()
	item     *systray.MenuItem
}

// Tray is a status.Observer backed by the system tray. Status changes
// before the tray is ready are held and applied once it is.
type Tray struct {
	items  []*MenuItem
	onExit func()

	mu      sync.Mutex
	ready   bool
	current string
	statusI *systray.MenuItem

	quitCh chan struct{}
}

// New creates a tray. onExit runs when the tray loop ends.
func New(onExit func()) *Tray {
	return &Tray{
		onExit:  onExit,
		current: "starting",
		quitCh:  make(chan struct{}),
	}
}

// AddMenuItem adds a menu item. Items must be added before Run.
func (t *Tray) AddMenuItem(title string, callback func()) {
	t.items = append(t.items, &MenuItem{Title: title, Callback: callback})
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.items = append(t.items, nil)
}

// Run starts the tray event loop. It blocks and must be called from the
// main goroutine.
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() {
		close(t.quitCh)
		if t.onExit != nil {
			t.onExit()
		}
	})
}

// Stop ends the tray loop
func (t *Tray) Stop() {
	systray.Quit()
}

func (t *Tray) setupMenu() {
	systray.SetTitle("gyrodesk")

	t.mu.Lock()
	t.statusI = systray.AddMenuItem(t.current, "Connection status")
	t.statusI.Disable()
	t.ready = true
	t.apply(t.current)
	t.mu.Unlock()

	systray.AddSeparator()
	for _, mi := range t.items {
		if mi == nil {
			systray.AddSeparator()
			continue
		}
		mi.item = systray.AddMenuItem(mi.Title, "")
		if mi.Callback == nil {
			continue
		}
		go func(mi *MenuItem) {
			for {
				select {
				case <-mi.item.ClickedCh:
					mi.Callback()
				case <-t.quitCh:
					return
				}
			}
		}(mi)
	}
}

// OnStatus updates the icon, tooltip and status line
func (t *Tray) OnStatus(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = s
	if t.ready {
		t.apply(s)
	}
}

// OnLog is ignored; the tray shows status only
func (t *Tray) OnLog(string) {}

// apply must be called with mu held after the tray is ready
func (t *Tray) apply(s string) {
	label := Label(s)
	systray.SetIcon(Icon(stateColor(s)))
	systray.SetTooltip("gyrodesk: " + label)
	t.statusI.SetTitle(label)
}

// Label turns a status string into menu text
func Label(s string) string {
	switch {
	case status.IsConnected(s):
		return "Connected to " + strings.TrimPrefix(s, "connected:")
	case s == status.Listening:
		return "Waiting for handheld"
	case s == status.Disconnected:
		return "Disconnected, waiting for handheld"
	case strings.HasPrefix(s, "error:"):
		return "Error: " + strings.TrimPrefix(s, "error:")
	}
	return s
}
