// Package wire implements the length-prefixed scalar encoding used on
// connections between the front-end web server and the daemon.
//
// A scalar is a 4-byte big-endian length header followed by that many
// payload bytes. Readers enforce a caller-supplied size bound before any
// payload memory is allocated, so an oversized or hostile length header
// cannot cause unbounded buffering.
//
// Example usage:
//
//	blob, err := wire.ReadScalar(conn, 128*1024)
//	if err == io.EOF {
//	    return nil // peer closed before sending anything
//	}
//	if err != nil {
//	    return err
//	}
package wire
