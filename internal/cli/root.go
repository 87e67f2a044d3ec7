package cli

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/n4t3/passenger/internal"
)

// Represents the root command for the passengerd daemon.
var RootCmd struct {
	Quiet       bool       `short:"q" help:"Suppress informational output."`
	Verbose     bool       `short:"v" help:"Enable verbose output."`
	Debug       bool       `short:"d" help:"Enable debug output."`
	SocketDir   string     `help:"Directory for filesystem-backed listener sockets." placeholder:"DIR"`
	OwnerPipeFD int        `help:"File descriptor of the inherited front-end liveness pipe." placeholder:"FD" default:"-1"`
	MetricsAddr string     `help:"Address for the Prometheus metrics endpoint. Empty disables it." placeholder:"ADDR"`
	Start       StartCmd   `cmd:"" help:"Start the daemon."`
	Version     VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
//
// Unlike most daemons there is no signal-cancelled context here: signal
// dispositions belong to the server's accept loop, which arms and restores
// them itself.
func Execute() error {
	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Application-server request handler.\n\nProvisions a Unix domain socket for the front-end web server and dispatches framed requests."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
//
// The resolved modes are stored back into the shared mode state so that
// code consulting internal.IsDebug and friends after flag parsing sees the
// flag overrides, not just the build-time defaults.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	internal.SetDebug(debug)
	internal.SetQuiet(quiet)
	internal.SetVerbose(verbose)

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler).WithGroup(internal.Name))
}
