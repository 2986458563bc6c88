//go:build linux

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// getPeerCredentials reads the kernel-verified identity of a connected
// peer via SO_PEERCRED.
func getPeerCredentials(conn *net.UnixConn) (PeerCredentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return PeerCredentials{}, fmt.Errorf("transport: get syscall conn: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return PeerCredentials{}, fmt.Errorf("transport: control: %w", err)
	}
	if credErr != nil {
		return PeerCredentials{}, fmt.Errorf("transport: getsockopt SO_PEERCRED: %w", credErr)
	}

	return PeerCredentials{PID: int(cred.Pid), UID: cred.Uid, GID: cred.Gid}, nil
}
