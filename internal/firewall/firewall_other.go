//go:build !windows

package firewall

// IsAdmin always reports false outside Windows
func IsAdmin() bool { return false }

// EnsureRule does nothing outside Windows
func EnsureRule(port int) error { return nil }
