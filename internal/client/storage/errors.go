package storage

import "errors"

// Common client storage errors
var (
	// ErrOperationNotFound indicates that operation was not found in the log
	ErrOperationNotFound = errors.New("operation not found")

	// ErrOperationExists indicates that an operation with the same id is already logged
	ErrOperationExists = errors.New("operation already exists")

	// ErrEntityNotFound indicates that entity was not found
	ErrEntityNotFound = errors.New("entity not found")

	// ErrStatusNotFound indicates that entity status is not tracked
	ErrStatusNotFound = errors.New("entity status not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
