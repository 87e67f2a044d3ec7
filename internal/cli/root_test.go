package cli

import (
	"context"
	"log/slog"
	"testing"

	"github.com/n4t3/passenger/internal"
)

// Resets the flag struct, the shared mode state, and the default logger.
func resetModes(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() {
		RootCmd.Quiet = false
		RootCmd.Verbose = false
		RootCmd.Debug = false
		internal.SetQuiet(false)
		internal.SetVerbose(false)
		internal.SetDebug(false)
		slog.SetDefault(prev)
	})
}

func TestConfigureLoggerStoresModes(t *testing.T) {
	resetModes(t)

	RootCmd.Debug = true
	RootCmd.Verbose = true
	configureLogger()

	if !internal.IsDebug() {
		t.Fatal("debug flag not stored in mode state")
	}
	if !internal.IsVerbose() {
		t.Fatal("verbose flag not stored in mode state")
	}
	if internal.IsQuiet() {
		t.Fatal("quiet mode set without the flag")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug mode did not lower the log level")
	}
}

func TestConfigureLoggerQuiet(t *testing.T) {
	resetModes(t)

	RootCmd.Quiet = true
	configureLogger()

	if !internal.IsQuiet() {
		t.Fatal("quiet flag not stored in mode state")
	}
	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("quiet mode left informational logging enabled")
	}
}
