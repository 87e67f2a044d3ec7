// Parses flags and configures logging for the passengerd daemon.
//
// The daemon accepts the following flags:
//
//	-q, --quiet          Suppress informational output.
//	-v, --verbose        Enable verbose output.
//	-d, --debug          Enable debug output.
//	    --socket-dir     Directory for filesystem-backed listener sockets.
//	    --owner-pipe-fd  Inherited front-end liveness pipe descriptor.
//	    --metrics-addr   Prometheus metrics endpoint address.
//
// Flags override build-time defaults set via linker flags. After parsing,
// the global logger is reconfigured to reflect the final level before the
// server starts.
package cli
