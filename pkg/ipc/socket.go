// Package ipc implements nipart's local-socket transport: a
// length-prefixed, JSON-framed message stream plus the typed envelope
// send/recv API every daemon-plugin and daemon-client connection uses.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Listen opens a unix stream socket at path, applying mode (the client
// API socket is 0666, world-dialable) when nonzero.
func Listen(path string, mode os.FileMode) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	origUmask := unix.Umask(0)
	defer unix.Umask(origUmask)
	l, err := net.Listen("unix", path)
	if err != nil {
		if errors.Is(err, unix.EADDRINUSE) {
			return nil, fmt.Errorf("socket %q exists; daemon already running or terminated ungracefully", path)
		}
		return nil, err
	}
	if mode != 0 {
		if err := os.Chmod(path, mode); err != nil {
			l.Close()
			return nil, err
		}
	}
	l.(*net.UnixListener).SetUnlinkOnClose(true)
	return l, nil
}

// Dial connects to the socket at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

// Exists reports whether a socket file is present at path.
func Exists(path string) (bool, error) {
	s, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if s.Mode()&os.ModeSocket == 0 {
		return false, fmt.Errorf("%q is not a socket", path)
	}
	return true, nil
}

// WaitForSocket polls until a socket file appears at path or ctx/ttw
// expires, used by the daemon before its first dial to a plugin socket.
func WaitForSocket(ctx context.Context, path string, ttw time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, ttw)
	defer cancel()
	for {
		if ok, err := Exists(path); err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w while waiting for socket %s", ctx.Err(), path)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// PeerCredentials returns the uid/gid/pid of the process on the other end
// of a unix socket connection, used to gate privileged API commands.
func PeerCredentials(conn net.Conn) (*unix.Ucred, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("ipc: peer credentials require a unix socket connection")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, err
	}
	var cred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, err
	}
	return cred, sockErr
}
