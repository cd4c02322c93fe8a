// Package sockopt applies the socket options used by the control listener and
// the datagram stream.
package sockopt

import (
	"context"
	"net"
	"syscall"
)

// Listen opens a TCP listener with SO_REUSEADDR set, so a restarted server can
// rebind while old connections sit in TIME_WAIT.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	return lc.Listen(ctx, "tcp", addr)
}

// LowDelay marks outgoing datagrams with the low-delay TOS. Best effort.
func LowDelay(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) { serr = setLowDelay(fd) }); err != nil {
		return err
	}
	return serr
}

func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) { serr = setReuseAddr(fd) }); err != nil {
		return err
	}
	return serr
}
