package server

import "errors"

var (
	ErrServer         = errors.New("server error")
	ErrHeaderTooLarge = errors.New("request header block too large")

	// Reported by the abstract-namespace provisioner when the host kernel
	// rejects the mechanism itself rather than a particular name.
	errAbstractUnsupported = errors.New("abstract socket namespace not supported")
)
