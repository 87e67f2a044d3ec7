package internal

import (
	"strconv"
	"sync/atomic"
)

// Runtime logging modes, seeded from linker flags and adjustable by the CLI.
type modeSet struct {
	quiet   atomic.Bool
	debug   atomic.Bool
	verbose atomic.Bool
}

var modes modeSet

// Parses the linker flags into usable runtime variables.
//
// rawQuiet, rawDebug, and rawVerbose should be set via ldflags during the
// build. Unset or unparsable values leave the mode off.
func init() {
	seed := func(raw string, m *atomic.Bool) {
		if v, err := strconv.ParseBool(raw); err == nil {
			m.Store(v)
		}
	}
	seed(rawQuiet, &modes.quiet)
	seed(rawDebug, &modes.debug)
	seed(rawVerbose, &modes.verbose)
}

// Enables or disables quiet mode.
func SetQuiet(enabled bool) { modes.quiet.Store(enabled) }

// Returns true if quiet mode is enabled.
func IsQuiet() bool { return modes.quiet.Load() }

// Enables or disables debug mode.
func SetDebug(enabled bool) { modes.debug.Store(enabled) }

// Returns true if debug mode is enabled.
func IsDebug() bool { return modes.debug.Load() }

// Enables or disables verbose logging.
func SetVerbose(enabled bool) { modes.verbose.Store(enabled) }

// Returns true if verbose logging is enabled.
func IsVerbose() bool { return modes.verbose.Load() }
