package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// What a readiness wait reported.
type readiness int

const (
	readyConn  readiness = iota // listening socket has a pending connection
	readyOwner                  // owner pipe became readable
	readyWake                   // wake pipe written by the signal relay or an external shutdown
)

// The single-threaded accept loop.
//
// One iteration blocks on readiness of the listening socket, the owner
// pipe, and the wake pipe; accepts exactly one connection; decodes its
// frame; and dispatches synchronously. Connections are processed strictly
// one at a time, in acceptance order. Concurrency across requests comes
// from running multiple handler processes, not from multiplexing inside
// one.
//
// Signal delivery cannot interrupt a descriptor wait in Go, so the signal
// relay goroutine records the requested termination mode and writes one
// byte to the wake pipe instead.
type eventLoop struct {
	sock       *listenSocket
	owner      *livenessMonitor
	signals    *signalController
	dispatcher Dispatcher

	wakeR, wakeW int   // self-pipe waking the readiness wait
	pending      int32 // requested terminationMode, written by the relay
	quit         chan struct{}
}

func newEventLoop(sock *listenSocket, owner *livenessMonitor, dispatcher Dispatcher) (*eventLoop, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("create wake pipe: %w", err)
	}

	return &eventLoop{
		sock:       sock,
		owner:      owner,
		signals:    newSignalController(),
		dispatcher: dispatcher,
		wakeR:      p[0],
		wakeW:      p[1],
		quit:       make(chan struct{}),
	}, nil
}

// Runs the loop until termination is requested or the owner dies.
//
// Signal dispositions are armed for exactly the duration of the loop and
// restored on every exit path.
func (l *eventLoop) run() error {
	l.signals.arm()
	defer l.signals.disarm()

	go l.relaySignals()
	defer close(l.quit)

	for {
		// Consult the pending mode before blocking: a shutdown requested
		// before the loop entered its first wait must not be lost to a
		// poll that nothing will ever wake.
		if mode := l.termination(); mode != terminateNone {
			l.exitTermination(mode)
			return nil
		}

		ready, err := l.wait()
		if err != nil {
			return err
		}

		switch ready {
		case readyWake:
			l.drainWake()
			if mode := l.termination(); mode != terminateNone {
				l.exitTermination(mode)
				return nil
			}
			continue

		case readyOwner:
			if l.owner.ownerGone() {
				slog.Info("front end terminated, shutting down")
				metricLoopExits.WithLabelValues(exitCauseOwnerDeath).Inc()
				return nil
			}
			continue
		}

		fd, err := l.sock.accept()
		if err != nil {
			if err == unix.EAGAIN || err == unix.ECONNABORTED {
				continue // spurious wakeup or peer gone before accept
			}
			slog.Error("accept failed", "error", err)
			continue
		}

		l.handle(fd)

		if mode := l.termination(); mode != terminateNone {
			l.exitTermination(mode)
			return nil
		}
	}
}

// Logs and counts a termination-driven loop exit.
func (l *eventLoop) exitTermination(mode terminationMode) {
	slog.Info("termination requested", "mode", modeName(mode))
	cause := exitCauseHard
	if mode == terminateSoft {
		cause = exitCauseSoft
	}
	metricLoopExits.WithLabelValues(cause).Inc()
}

// Blocks with no timeout until one of the descriptors is ready.
//
// Wake and owner readiness take priority over a pending connection so that
// termination is never delayed by a busy accept queue.
func (l *eventLoop) wait() (readiness, error) {
	fds := []unix.PollFd{
		{Fd: int32(l.wakeR), Events: unix.POLLIN},
		{Fd: int32(l.sock.fd), Events: unix.POLLIN},
	}
	if l.owner.enabled() {
		fds = append(fds, unix.PollFd{Fd: int32(l.owner.fd), Events: unix.POLLIN})
	}

	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			if l.termination() == terminateHard {
				return readyWake, nil
			}
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll: %w", err)
		}

		if fds[0].Revents != 0 {
			return readyWake, nil
		}
		if l.owner.enabled() && fds[2].Revents != 0 {
			return readyOwner, nil
		}
		if fds[1].Revents != 0 {
			return readyConn, nil
		}
	}
}

// Processes one accepted connection.
//
// Decode and dispatch failures of the I/O kind are logged and drop the
// connection without stopping the loop. The connection is closed
// unconditionally; close errors are swallowed. Panics are deliberately not
// recovered: a dispatcher failure that is not an I/O error should take the
// process down.
func (l *eventLoop) handle(fd int) {
	conn := os.NewFile(uintptr(fd), "connection")
	defer conn.Close()

	metricConnectionsAccepted.Inc()

	req, err := decodeRequest(conn)
	switch {
	case err == nil:

	case errors.Is(err, io.EOF):
		// Peer connected and closed without sending a frame. Silent drop.
		metricConnectionsDropped.WithLabelValues(dropReasonEmpty).Inc()
		return

	case errors.Is(err, ErrHeaderTooLarge):
		slog.Error("request header block too large", "limit", MaxHeaderSize)
		metricConnectionsDropped.WithLabelValues(dropReasonHeaderTooLarge).Inc()
		return

	default:
		slog.Error("failed to decode request", "error", err)
		metricConnectionsDropped.WithLabelValues(dropReasonDecodeError).Inc()
		return
	}

	if err := l.dispatcher.Dispatch(req.Headers, req.Body, conn); err != nil {
		slog.Error("request dispatch failed", "error", err)
		metricConnectionsDropped.WithLabelValues(dropReasonDispatchError).Inc()
		return
	}

	metricRequestsDispatched.Inc()
}

// Forwards delivered signals into termination requests until the loop
// exits.
func (l *eventLoop) relaySignals() {
	for {
		select {
		case sig := <-l.signals.deliveries():
			slog.Debug("signal received", "signal", sig)
			l.requestTermination(modeFor(sig))
		case <-l.quit:
			return
		}
	}
}

// Records the requested termination mode and wakes the readiness wait.
//
// Hard termination overrides a pending soft one, never the reverse.
func (l *eventLoop) requestTermination(mode terminationMode) {
	for {
		cur := atomic.LoadInt32(&l.pending)
		if terminationMode(cur) >= mode {
			break
		}
		if atomic.CompareAndSwapInt32(&l.pending, cur, int32(mode)) {
			break
		}
	}
	l.wake()
}

// The currently requested termination mode.
func (l *eventLoop) termination() terminationMode {
	return terminationMode(atomic.LoadInt32(&l.pending))
}

// Writes one byte to the wake pipe. A full pipe means a wakeup is already
// pending, which is all that is needed.
func (l *eventLoop) wake() {
	if l.wakeW >= 0 {
		unix.Write(l.wakeW, []byte{1})
	}
}

// Empties the wake pipe after a wakeup.
func (l *eventLoop) drainWake() {
	buf := make([]byte, 16)
	for {
		n, err := unix.Read(l.wakeR, buf)
		if err != nil || n < len(buf) {
			return
		}
	}
}

// Requests hard termination from outside the loop, waking a blocked
// readiness wait. Descriptors stay open until [eventLoop.close] so the
// poller never sees a reused fd.
func (l *eventLoop) shutdown() {
	l.requestTermination(terminateHard)
}

// Releases the wake pipe. Must not be called while run is still polling.
// Safe to call twice.
func (l *eventLoop) close() {
	if l.wakeW >= 0 {
		unix.Close(l.wakeW)
		l.wakeW = -1
	}
	if l.wakeR >= 0 {
		unix.Close(l.wakeR)
		l.wakeR = -1
	}
}

func modeName(mode terminationMode) string {
	switch mode {
	case terminateSoft:
		return "soft"
	case terminateHard:
		return "hard"
	default:
		return "none"
	}
}
