package server

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/n4t3/passenger/internal/paths"
)

const (

	// Size of sun_path in struct sockaddr_un on Linux, including the
	// terminating NUL for pathname sockets.
	maxSocketNameLen = 108

	// Backlog passed to listen(2).
	listenBacklog = 128

	// File mode applied to filesystem-backed sockets. Only the owner may
	// connect; the front end runs as the same user.
	socketFileMode = 0600

	// Prefix for filesystem-backed socket names.
	socketPrefix = "passengerd."

	// Environment variable that, when set to a non-empty value, disables
	// abstract-namespace sockets and forces filesystem-backed ones.
	NoAbstractSocketsEnv = "PASSENGERD_NO_ABSTRACT_SOCKETS"
)

// A bound and listening Unix domain socket.
//
// The socket is either abstract (a kernel-namespace name with no filesystem
// entry) or filesystem-backed; the flavor is resolved once at provisioning
// time and selects the cleanup behavior. Exactly one live listenSocket
// exists per server.
type listenSocket struct {
	fd       int    // Listening file descriptor, -1 after close.
	name     string // Abstract token (without the leading NUL) or absolute path.
	abstract bool   // Whether the socket lives in the abstract namespace.
	path     string // Filesystem path to unlink on close; empty for abstract.
}

// The socket name published to the embedding process's controller.
func (ls *listenSocket) Name() string {
	return ls.name
}

// Whether the socket lives in the abstract namespace.
func (ls *listenSocket) Abstract() bool {
	return ls.abstract
}

// Accepts one connection, retrying transparently on EINTR.
//
// The listening descriptor is non-blocking; callers poll for readiness
// first and treat EAGAIN as a spurious wakeup. Accepted descriptors are
// blocking and close-on-exec.
func (ls *listenSocket) accept() (int, error) {
	for {
		fd, _, err := unix.Accept4(ls.fd, unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}
		return fd, nil
	}
}

// Closes the descriptor and unlinks the filesystem path if one exists.
//
// Safe to call multiple times and on a partially constructed socket.
func (ls *listenSocket) close() {
	if ls.fd >= 0 {
		unix.Close(ls.fd)
		ls.fd = -1
	}
	if ls.path != "" {
		os.Remove(ls.path)
		ls.path = ""
	}
}

// Provisions the listening socket.
//
// Prefers the abstract namespace because it leaves no stale file after a
// crash. Falls back to a filesystem-backed socket when the platform lacks
// the mechanism, the kernel rejects it, or the environment toggle disables
// it. Name collisions are retried with a fresh random identifier; any other
// OS failure is fatal.
func provisionSocket(dir string) (*listenSocket, error) {
	if abstractSocketsSupported() && os.Getenv(NoAbstractSocketsEnv) == "" {
		ls, err := provisionAbstract()
		if err == nil {
			return ls, nil
		}
		if !errors.Is(err, errAbstractUnsupported) {
			return nil, err
		}
		slog.Debug("abstract namespace unavailable, using filesystem socket", "error", err)
	}

	return provisionFilesystem(dir)
}

// Abstract-namespace sockets are a Linux mechanism.
func abstractSocketsSupported() bool {
	return runtime.GOOS == "linux"
}

// Binds a listening socket in the abstract namespace under a random
// hexadecimal name.
func provisionAbstract() (*listenSocket, error) {
	for {
		name, err := randomHex(32)
		if err != nil {
			return nil, err
		}
		if len(name) > maxSocketNameLen-2 {
			name = name[:maxSocketNameLen-2]
		}

		fd, err := newSocketFD()
		if err != nil {
			return nil, err
		}

		// x/sys/unix maps a leading '@' to the NUL byte that marks the
		// abstract namespace.
		err = unix.Bind(fd, &unix.SockaddrUnix{Name: "@" + name})
		switch {
		case err == nil:
		case errors.Is(err, unix.EADDRINUSE):
			unix.Close(fd)
			continue
		case errors.Is(err, unix.EINVAL),
			errors.Is(err, unix.EAFNOSUPPORT),
			errors.Is(err, unix.EOPNOTSUPP),
			errors.Is(err, unix.EPERM):
			unix.Close(fd)
			return nil, fmt.Errorf("bind abstract socket: %v: %w", err, errAbstractUnsupported)
		default:
			unix.Close(fd)
			return nil, fmt.Errorf("bind abstract socket: %w", err)
		}

		if err := unix.Listen(fd, listenBacklog); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("listen on abstract socket: %w", err)
		}

		return &listenSocket{fd: fd, name: name, abstract: true}, nil
	}
}

// Binds a listening socket at a random path under dir, mode 0600.
//
// An empty dir selects the default socket directory. Collisions are retried
// with a fresh identifier; the identifier space is large enough that this
// loop terminates under any normal conditions.
func provisionFilesystem(dir string) (*listenSocket, error) {
	if dir == "" {
		dir = paths.SocketDir()
	}
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	for {
		id, err := randomToken(24)
		if err != nil {
			return nil, err
		}

		path := filepath.Join(dir, socketPrefix+id)
		if len(path) > maxSocketNameLen-1 {
			path = path[:maxSocketNameLen-1]
		}

		fd, err := newSocketFD()
		if err != nil {
			return nil, err
		}

		err = unix.Bind(fd, &unix.SockaddrUnix{Name: path})
		if errors.Is(err, unix.EADDRINUSE) {
			unix.Close(fd)
			continue
		}
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("bind socket at %s: %w", path, err)
		}

		if err := os.Chmod(path, socketFileMode); err != nil {
			unix.Close(fd)
			os.Remove(path)
			return nil, fmt.Errorf("chmod socket %s: %w", path, err)
		}

		if err := unix.Listen(fd, listenBacklog); err != nil {
			unix.Close(fd)
			os.Remove(path)
			return nil, fmt.Errorf("listen on %s: %w", path, err)
		}

		return &listenSocket{fd: fd, name: path, path: path}, nil
	}
}

// Creates an unbound non-blocking stream socket descriptor.
func newSocketFD() (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("create socket: %w", err)
	}
	return fd, nil
}

// Returns 2n cryptographically random hexadecimal characters.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Returns a cryptographically random URL-safe identifier from n bytes of
// entropy.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
