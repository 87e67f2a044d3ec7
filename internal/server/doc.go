// Package server implements the passengerd request-acceptance core.
//
// The daemon provisions a Unix domain socket for the front-end web server
// to connect to, preferring the Linux abstract namespace (no filesystem
// entry, nothing stale after a crash) with transparent fallback to a
// filesystem-backed socket under the runtime directory. A single-threaded
// event loop multiplexes the listening socket with the read end of an
// inherited liveness pipe: when the front end dies, by any means, the pipe
// yields end-of-stream and the loop shuts down.
//
// Each accepted connection carries one request frame: a 4-byte big-endian
// length header, a NUL-delimited block of header name/value pairs, and the
// verbatim request body. Decoded requests are handed synchronously to a
// [Dispatcher]; one connection is fully processed before the next is
// accepted, because a handler is one worker among many processes.
//
// Termination is signal driven: SIGTERM and SIGINT stop the loop
// immediately, SIGUSR1 lets the in-flight connection finish first, and
// SIGHUP is ignored.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    OwnerPipeFD: 3,
//	    Dispatcher:  app,
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	publish(srv.SocketName(), srv.UsingAbstractNamespace())
//	return srv.Run()
package server
