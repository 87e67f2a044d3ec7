package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	daemonName = "passengerd"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (PID file and friends).
//
//	Linux:   $XDG_RUNTIME_DIR/passengerd or /run/user/<uid>/passengerd
//	macOS:   ~/Library/Caches/passengerd/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, daemonName)
	}
	return filepath.Join(xdg.CacheHome, daemonName, "run")
}

// Default directory for filesystem-backed listener sockets.
//
// The runtime directory is preferred because it is per-user and cleared at
// logout. Hosts without one fall back to the system temporary directory,
// which is where front ends historically looked for handler sockets.
func SocketDir() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, daemonName)
	}
	return os.TempDir()
}

// Default path to the PID file.
//
//	Linux:   $XDG_RUNTIME_DIR/passengerd/passengerd.pid
//	macOS:   ~/Library/Caches/passengerd/run/passengerd.pid
func PIDFile() string {
	return filepath.Join(Runtime(), daemonName+".pid")
}
