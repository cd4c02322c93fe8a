//go:build linux || darwin || freebsd || netbsd || openbsd

package sockopt

import "golang.org/x/sys/unix"

const iptosLowDelay = 0x10

func setReuseAddr(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func setLowDelay(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, iptosLowDelay)
}
