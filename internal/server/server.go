package server

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/n4t3/passenger/internal/paths"
)

// Turns a decoded request into a response.
//
// Implementations receive the header mapping, the connection positioned at
// the start of the body, and the connection itself for writing the
// response. A returned error is treated as an I/O-class failure: the loop
// logs it, drops the connection, and keeps running. Failures that should
// take the process down must panic instead.
type Dispatcher interface {
	Dispatch(headers map[string]string, body io.Reader, conn io.ReadWriter) error
}

// Holds server configuration.
type Config struct {
	SocketDir   string     // Directory for filesystem-backed sockets. Empty uses the default.
	OwnerPipeFD int        // Read end of the front end's liveness pipe. Zero or negative disables monitoring; stdin is never the owner pipe.
	Dispatcher  Dispatcher // Request dispatcher. Required.
	Version     string     // Version string published at startup, supplied by the embedding process.
}

// Accepts connections from the front end and dispatches decoded requests.
type Server struct {
	cfg       Config
	sock      *listenSocket
	owner     *livenessMonitor
	loop      *eventLoop
	startedAt time.Time

	mu       sync.Mutex    // Guards running and stopped.
	running  bool          // Whether Run entered the loop.
	stopped  bool          // Whether Stop began; Run must not start after this.
	done     chan struct{} // Closed when Run returns.
	stopOnce sync.Once
}

// Creates a new server instance.
//
// The listening socket is not provisioned until [Server.Start] is called.
func New(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("%w: nil dispatcher", ErrServer)
	}
	if cfg.OwnerPipeFD <= 0 {
		cfg.OwnerPipeFD = -1
	}

	return &Server{cfg: cfg, done: make(chan struct{})}, nil
}

// Provisions the listening socket and the liveness monitor.
//
// After Start returns, the socket name and namespace flag are available
// for the embedding process to publish to its controller.
func (s *Server) Start() error {
	sock, err := provisionSocket(s.cfg.SocketDir)
	if err != nil {
		return fmt.Errorf("provision listener socket: %w", err)
	}
	s.sock = sock
	s.owner = newLivenessMonitor(s.cfg.OwnerPipeFD)

	loop, err := newEventLoop(sock, s.owner, s.cfg.Dispatcher)
	if err != nil {
		s.sock.close()
		s.owner.close()
		return err
	}
	s.loop = loop
	s.startedAt = time.Now()

	if err := writePID(); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}

	slog.Info("server listening on socket",
		"socket", sock.Name(),
		"abstract", sock.Abstract(),
		"version", s.cfg.Version,
	)

	return nil
}

// Runs the accept loop until termination. Blocks.
//
// Refuses to enter the loop once Stop has begun: by then the descriptors
// may already be closed, and a poll over them would never wake.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.loop == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: not started", ErrServer)
	}
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("%w: already stopped", ErrServer)
	}
	s.running = true
	s.mu.Unlock()

	defer close(s.done)
	return s.loop.run()
}

// The provisioned socket name: an abstract-namespace token (without the
// implicit leading NUL) or an absolute filesystem path. Empty before Start.
func (s *Server) SocketName() string {
	if s.sock == nil {
		return ""
	}
	return s.sock.Name()
}

// Whether the provisioned socket lives in the abstract namespace.
func (s *Server) UsingAbstractNamespace() bool {
	return s.sock != nil && s.sock.Abstract()
}

// Shuts down the server and cleans up resources.
//
// Wakes a running loop and waits for it to return, then closes the socket
// and the owner pipe and unlinks the filesystem socket path if one was
// used. Idempotent, and safe to call even if Start failed partway.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		running := s.running
		s.mu.Unlock()

		if s.loop != nil {
			s.loop.shutdown()
			if running {
				<-s.done
			}
			s.loop.close()
		}
		if s.sock != nil {
			s.sock.close()
		}
		if s.owner != nil {
			s.owner.close()
		}
		os.Remove(paths.PIDFile())
	})
	return nil
}

// Writes the daemon PID to the PID file so the front end's controller can
// detect whether the handler is already running and send it signals.
func writePID() error {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(paths.PIDFile(), fmt.Appendf(nil, "%d", os.Getpid()), paths.DefaultFileMode)
}
