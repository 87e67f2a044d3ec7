// Package dispatch provides basic request dispatchers.
//
// The real application dispatcher is supplied by the embedding process;
// these implementations exist for standalone runs and tests.
package dispatch

import (
	"fmt"
	"io"
)

// Writes a fixed response to every connection, discarding the body.
type Static struct {
	Response []byte
}

// Dispatches by draining the request body and writing the fixed response.
func (s Static) Dispatch(headers map[string]string, body io.Reader, conn io.ReadWriter) error {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return fmt.Errorf("drain request body: %w", err)
	}
	if _, err := conn.Write(s.Response); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// Adapts a function to the dispatcher interface.
type Func func(headers map[string]string, body io.Reader, conn io.ReadWriter) error

func (f Func) Dispatch(headers map[string]string, body io.Reader, conn io.ReadWriter) error {
	return f(headers, body, conn)
}
