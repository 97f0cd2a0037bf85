//go:build !windows

package dpx

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenReusable opens a TCP listener on addr with SO_REUSEADDR set, so a
// Peer restarting after a crash can rebind its listen address without
// waiting out TIME_WAIT. Grounded on the SO_REUSEADDR wiring in
// luzrain-outline-ss-server's listener setup, adapted to the portable
// net.ListenConfig.Control hook instead of a raw syscall.Socket call.
func listenReusable(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}
	return lc.Listen(context.Background(), "tcp", addr)
}
