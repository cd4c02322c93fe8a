// Package autostart registers gyrodesk to start at login: a LaunchAgent on
// macOS, an XDG autostart entry on Linux and a Startup-folder script on
// Windows.
package autostart

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
)

const label = "com.gyrodesk.agent"

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>{{range .Args}}
        <string>{{.}}</string>{{end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const desktopEntry = `[Desktop Entry]
Type=Application
Name=gyrodesk
Comment=Handheld pointer and screen streaming
Exec="{{.ExecutablePath}}"{{range .Args}} {{.}}{{end}}
Terminal=false
X-GNOME-Autostart-enabled=true
`

const windowsScript = `@echo off
start "" "{{.ExecutablePath}}"{{range .Args}} {{.}}{{end}}
`

// Entry describes what to launch at login
type Entry struct {
	ExecutablePath string
	Args           []string
	Label          string
}

// Manager writes and removes the login entry for one platform
type Manager struct {
	path string
	tmpl string
}

// ErrUnsupported is returned on platforms without a login-item mechanism
var ErrUnsupported = errors.New("autostart: unsupported platform")

// New returns the manager for the running platform
func New() (*Manager, error) {
	return ForPlatform(runtime.GOOS)
}

// ForPlatform returns the manager for goos
func ForPlatform(goos string) (*Manager, error) {
	switch goos {
	case "darwin":
		return &Manager{path: filepath.Join(xdg.Home, "Library", "LaunchAgents", label+".plist"), tmpl: macLaunchAgentPlist}, nil
	case "windows":
		roaming := os.Getenv("APPDATA")
		if roaming == "" {
			roaming = xdg.ConfigHome
		}
		return &Manager{path: filepath.Join(roaming, "Microsoft", "Windows", "Start Menu", "Programs", "Startup", "gyrodesk.cmd"), tmpl: windowsScript}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return &Manager{path: filepath.Join(xdg.ConfigHome, "autostart", "gyrodesk.desktop"), tmpl: desktopEntry}, nil
	default:
		return nil, errors.Wrap(ErrUnsupported, goos)
	}
}

// Path returns the file the entry is written to
func (m *Manager) Path() string { return m.path }

// Enable writes the login entry for the current executable
func (m *Manager) Enable(args ...string) error {
	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "failed to get executable path")
	}
	return m.Write(Entry{ExecutablePath: exe, Args: args})
}

// Write renders e into the platform file
func (m *Manager) Write(e Entry) error {
	if e.Label == "" {
		e.Label = label
	}
	tmpl, err := template.New("autostart").Parse(m.tmpl)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, e); err != nil {
		return err
	}
	return os.WriteFile(m.path, []byte(sb.String()), 0644)
}

// Disable removes the login entry. A missing entry is not an error.
func (m *Manager) Disable() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsEnabled checks if the login entry exists
func (m *Manager) IsEnabled() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
