package server

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sys/unix"

	"github.com/n4t3/passenger/internal/dispatch"
	"github.com/n4t3/passenger/internal/wire"
)

// A running event loop over a filesystem socket with a live owner pipe.
type loopFixture struct {
	sock   *listenSocket
	owner  *livenessMonitor
	loop   *eventLoop
	ownerW int
	errCh  chan error
	exited bool
}

func startLoop(t *testing.T, d Dispatcher) *loopFixture {
	t.Helper()

	sock, err := provisionFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("provisionFilesystem: %v", err)
	}

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}

	owner := newLivenessMonitor(p[0])

	loop, err := newEventLoop(sock, owner, d)
	if err != nil {
		t.Fatalf("newEventLoop: %v", err)
	}

	f := &loopFixture{
		sock:   sock,
		owner:  owner,
		loop:   loop,
		ownerW: p[1],
		errCh:  make(chan error, 1),
	}

	go func() { f.errCh <- loop.run() }()

	t.Cleanup(func() {
		if !f.exited {
			loop.shutdown()
			select {
			case <-f.errCh:
			case <-time.After(5 * time.Second):
				t.Error("event loop did not exit during cleanup")
			}
		}
		loop.close()
		sock.close()
		owner.close()
		f.closeOwnerWrite()
	})

	return f
}

// Simulates front-end death by closing the pipe's write end.
func (f *loopFixture) closeOwnerWrite() {
	if f.ownerW >= 0 {
		unix.Close(f.ownerW)
		f.ownerW = -1
	}
}

func (f *loopFixture) waitExit(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.errCh:
		f.exited = true
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not exit in time")
		return nil
	}
}

// One complete client exchange: frame plus body out, full response back.
func exchange(t *testing.T, sockName string, block, body []byte) []byte {
	t.Helper()

	conn, err := net.Dial("unix", sockName)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteScalar(conn, block); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if _, err := conn.Write(body); err != nil {
		t.Fatalf("write body: %v", err)
	}
	if err := conn.(*net.UnixConn).CloseWrite(); err != nil {
		t.Fatalf("close write side: %v", err)
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return reply
}

func TestEventLoopDispatchesRequest(t *testing.T) {
	type seen struct {
		headers map[string]string
		body    []byte
	}
	got := make(chan seen, 1)

	f := startLoop(t, dispatch.Func(func(headers map[string]string, body io.Reader, conn io.ReadWriter) error {
		b, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		got <- seen{headers: headers, body: b}
		_, err = conn.Write([]byte("RESPONSE"))
		return err
	}))

	reply := exchange(t, f.sock.Name(), []byte("X-Test\x00v1\x00"), []byte("hello"))
	if string(reply) != "RESPONSE" {
		t.Fatalf("reply = %q, want RESPONSE", reply)
	}

	s := <-got
	if s.headers["X-Test"] != "v1" {
		t.Fatalf("X-Test = %q, want v1", s.headers["X-Test"])
	}
	if string(s.body) != "hello" {
		t.Fatalf("body = %q, want hello", s.body)
	}

	f.closeOwnerWrite()
	if err := f.waitExit(t); err != nil {
		t.Fatalf("loop exited with %v", err)
	}
}

func TestEventLoopOwnerDeathWhileIdle(t *testing.T) {
	before := testutil.ToFloat64(metricLoopExits.WithLabelValues(exitCauseOwnerDeath))

	f := startLoop(t, dispatch.Func(func(map[string]string, io.Reader, io.ReadWriter) error {
		t.Error("dispatcher invoked with no connection")
		return nil
	}))

	f.closeOwnerWrite()
	if err := f.waitExit(t); err != nil {
		t.Fatalf("loop exited with %v", err)
	}

	after := testutil.ToFloat64(metricLoopExits.WithLabelValues(exitCauseOwnerDeath))
	if after != before+1 {
		t.Fatalf("owner-death exits = %v, want %v", after, before+1)
	}
}

func TestEventLoopSoftTerminationWhileIdle(t *testing.T) {
	before := testutil.ToFloat64(metricLoopExits.WithLabelValues(exitCauseSoft))

	f := startLoop(t, dispatch.Static{})

	f.loop.requestTermination(terminateSoft)
	if err := f.waitExit(t); err != nil {
		t.Fatalf("loop exited with %v", err)
	}

	after := testutil.ToFloat64(metricLoopExits.WithLabelValues(exitCauseSoft))
	if after != before+1 {
		t.Fatalf("soft-termination exits = %v, want %v", after, before+1)
	}
}

func TestEventLoopSoftSignalDuringProcessing(t *testing.T) {
	f := startLoop(t, dispatch.Func(func(_ map[string]string, body io.Reader, conn io.ReadWriter) error {
		// Soft termination arrives mid-request; the connection must still
		// finish normally.
		if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
			return err
		}
		if _, err := io.Copy(io.Discard, body); err != nil {
			return err
		}
		_, err := conn.Write([]byte("done"))
		return err
	}))

	reply := exchange(t, f.sock.Name(), []byte("A\x001\x00"), nil)
	if string(reply) != "done" {
		t.Fatalf("reply = %q, want done", reply)
	}

	if err := f.waitExit(t); err != nil {
		t.Fatalf("loop exited with %v", err)
	}
}

func TestEventLoopBadConnectionsNonFatal(t *testing.T) {
	f := startLoop(t, dispatch.Func(func(_ map[string]string, body io.Reader, conn io.ReadWriter) error {
		if _, err := io.Copy(io.Discard, body); err != nil {
			return err
		}
		_, err := conn.Write([]byte("ok"))
		return err
	}))

	// Connection that closes without sending anything: silent drop.
	conn, err := net.Dial("unix", f.sock.Name())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	// Oversized header block: logged, dropped, loop continues.
	conn, err = net.Dial("unix", f.sock.Name())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxHeaderSize+1)
	if _, err := conn.Write(prefix[:]); err != nil {
		t.Fatalf("write oversized prefix: %v", err)
	}
	conn.Close()

	// Truncated length header: an I/O decode failure, also non-fatal.
	conn, err = net.Dial("unix", f.sock.Name())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := conn.Write([]byte{0, 0}); err != nil {
		t.Fatalf("write truncated prefix: %v", err)
	}
	conn.Close()

	// The loop processes connections in order, so a successful exchange
	// here proves none of the above were fatal.
	reply := exchange(t, f.sock.Name(), []byte("A\x001\x00"), nil)
	if string(reply) != "ok" {
		t.Fatalf("reply = %q, want ok", reply)
	}

	f.closeOwnerWrite()
	if err := f.waitExit(t); err != nil {
		t.Fatalf("loop exited with %v", err)
	}
}

func TestEventLoopDispatchErrorNonFatal(t *testing.T) {
	calls := 0
	f := startLoop(t, dispatch.Func(func(_ map[string]string, body io.Reader, conn io.ReadWriter) error {
		calls++
		if calls == 1 {
			return io.ErrClosedPipe
		}
		if _, err := io.Copy(io.Discard, body); err != nil {
			return err
		}
		_, err := conn.Write([]byte("ok"))
		return err
	}))

	// First dispatch fails with an I/O error; the connection is dropped
	// and the loop keeps accepting.
	exchange(t, f.sock.Name(), []byte("A\x001\x00"), nil)

	reply := exchange(t, f.sock.Name(), []byte("A\x001\x00"), nil)
	if string(reply) != "ok" {
		t.Fatalf("reply = %q, want ok", reply)
	}

	f.closeOwnerWrite()
	if err := f.waitExit(t); err != nil {
		t.Fatalf("loop exited with %v", err)
	}
}
