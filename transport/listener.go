// Package transport owns the Unix-socket control connection the WM
// process dials in on, and the peer-credential lookup used to
// diagnose it. It deliberately does not implement any wire framing:
// the binary message encoding named in spec.md §1 as out of scope
// stays out of scope here too (see DESIGN.md).
package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
)

// ErrAlreadyBound is returned by Accept once a WM client is already
// connected: exactly one control connection may be active at a time,
// since wmbridge.Bridge assumes a single WindowManagerEvents sink.
var ErrAlreadyBound = errors.New("transport: a WM client is already connected")

// PeerCredentials is the kernel-verified identity of a connected WM
// process, obtained via SO_PEERCRED.
type PeerCredentials struct {
	PID int
	UID uint32
	GID uint32
}

// Conn is one accepted WM control connection: the raw socket plus its
// verified peer credentials.
type Conn struct {
	net.Conn
	Peer PeerCredentials
}

// UnixListener listens on a single Unix-domain socket for the WM
// process's control connection, grounded on the teacher's
// wayland.Display socket-lifecycle conventions (display.go's
// ConnectTo/Close) but on the server side of the handshake instead of
// the client side.
type UnixListener struct {
	mu       sync.Mutex
	listener *net.UnixListener
	path     string
	bound    bool
}

// Listen creates a Unix-domain socket at path. Any stale socket file
// left over from a prior crashed process is removed first, matching
// the teacher's getSocketPath/ConnectTo assumption that the path is
// otherwise free.
func Listen(path string) (*UnixListener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("transport: remove stale socket %s: %w", path, err)
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	return &UnixListener{listener: ln, path: path}, nil
}

// Accept blocks for the next WM connection and verifies its peer
// credentials. It returns ErrAlreadyBound without accepting if a
// client is already connected.
func (l *UnixListener) Accept() (*Conn, error) {
	l.mu.Lock()
	if l.bound {
		l.mu.Unlock()
		return nil, ErrAlreadyBound
	}
	l.mu.Unlock()

	conn, err := l.listener.AcceptUnix()
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}

	peer, err := getPeerCredentials(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("transport: peer credentials: %w", err)
	}

	l.mu.Lock()
	l.bound = true
	l.mu.Unlock()

	return &Conn{Conn: conn, Peer: peer}, nil
}

// Release marks the listener ready to Accept a new connection again,
// called once the bound Conn is closed (the WM process exited or was
// disconnected).
func (l *UnixListener) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bound = false
}

// Close closes the listening socket and removes the socket file.
func (l *UnixListener) Close() error {
	err := l.listener.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
		if err == nil {
			err = rmErr
		}
	}
	return err
}

// Path returns the filesystem path of the listening socket.
func (l *UnixListener) Path() string {
	return l.path
}
