package cli

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/n4t3/passenger/internal"
	"github.com/n4t3/passenger/internal/dispatch"
	"github.com/n4t3/passenger/internal/server"
)

// Represents the 'passengerd start' command.
type StartCmd struct{}

// Executes the start command.
//
// Provisions the listener socket, publishes its name, and blocks in the
// accept loop until a termination signal arrives or the front end dies.
func (c *StartCmd) Run() error {
	srv, err := server.New(server.Config{
		SocketDir:   RootCmd.SocketDir,
		OwnerPipeFD: RootCmd.OwnerPipeFD,
		Dispatcher:  dispatch.Static{Response: []byte("Status: 200 OK\r\n\r\n")},
		Version:     internal.VersionString(),
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	if RootCmd.MetricsAddr != "" {
		go serveMetrics(RootCmd.MetricsAddr)
	}

	slog.Info("passengerd is running",
		"socket", srv.SocketName(),
		"abstract", srv.UsingAbstractNamespace(),
	)

	err = srv.Run()
	slog.Info("shutting down")
	return err
}

// Serves the Prometheus metrics endpoint.
//
// Failure to bind is logged and not fatal: metrics are an operator
// convenience, the handler keeps serving requests without them.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil {
		slog.Warn("metrics endpoint failed", "error", err)
	}
}
