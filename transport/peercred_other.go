//go:build !linux

package transport

import (
	"fmt"
	"net"
)

// getPeerCredentials is unsupported outside Linux; this core targets
// a Linux Wayland session per spec.md §1.
func getPeerCredentials(conn *net.UnixConn) (PeerCredentials, error) {
	return PeerCredentials{}, fmt.Errorf("transport: peer credentials unsupported on this platform")
}
