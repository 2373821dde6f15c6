package api

import "errors"

var (
	// ErrServer indicates a non-2xx response from the sync endpoint
	ErrServer = errors.New("server error")

	// ErrUnauthorized indicates a missing, expired or invalid access token
	ErrUnauthorized = errors.New("unauthorized")
)
