package server

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// Watches the read end of the pipe whose write end is held by the front-end
// process.
//
// The pipe never carries data; it exists so that the front end's death, by
// any means including a forced kill, closes the write end and makes the
// read end yield end-of-stream. The monitor only lends its descriptor to
// the event loop's readiness wait and interprets the result of a read.
type livenessMonitor struct {
	fd int // Read end of the owner pipe, -1 when disabled or closed.
}

// Creates a monitor around the inherited pipe descriptor.
//
// A negative fd produces a disabled monitor, for standalone runs without a
// front end. The descriptor is switched to non-blocking so that readiness
// checks can drain it without stalling the loop.
func newLivenessMonitor(fd int) *livenessMonitor {
	if fd < 0 {
		return &livenessMonitor{fd: -1}
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		slog.Warn("failed to set owner pipe non-blocking", "error", err)
	}
	return &livenessMonitor{fd: fd}
}

// Whether a front-end pipe was inherited at all.
func (m *livenessMonitor) enabled() bool {
	return m.fd >= 0
}

// Reads the pipe after a readiness wakeup and reports whether the owner is
// gone.
//
// Owner death is end-of-stream, not readable-with-data: bytes on the pipe
// violate the protocol and are logged and discarded. Read errors other than
// EAGAIN are treated as owner death since the pipe is unusable either way.
func (m *livenessMonitor) ownerGone() bool {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(m.fd, buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return false
		case err != nil:
			slog.Warn("owner pipe read failed", "error", err)
			return true
		case n == 0:
			return true
		default:
			slog.Warn("owner pipe unexpectedly carried data", "bytes", n)
		}
	}
}

// Releases the pipe descriptor. Safe to call twice.
func (m *livenessMonitor) close() {
	if m.fd >= 0 {
		unix.Close(m.fd)
		m.fd = -1
	}
}
