//go:build windows

package dpx

import "net"

// listenReusable opens a plain TCP listener. Windows' SO_REUSEADDR has
// different (looser) semantics than Unix's and enabling it risks two
// processes silently sharing a port, so Bind relies on the OS default here
// instead.
func listenReusable(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
