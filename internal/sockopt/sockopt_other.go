//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package sockopt

func setReuseAddr(fd uintptr) error { return nil }

func setLowDelay(fd uintptr) error { return nil }
