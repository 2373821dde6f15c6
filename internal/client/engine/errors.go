package engine

import "errors"

var (
	// ErrTransport wraps every failure of the exchange with the remote endpoint.
	// Queued operations stay queued and are retried on the next cycle.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidResponse indicates a response that cannot belong to the request
	ErrInvalidResponse = errors.New("invalid sync response")
)
