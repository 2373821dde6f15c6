package storage

import "errors"

// Common storage errors
var (
	// ErrOperationConflict indicates that operation id is already used by another user
	ErrOperationConflict = errors.New("operation id belongs to another user")

	// ErrInvalidCursor indicates a negative cursor or limit
	ErrInvalidCursor = errors.New("invalid cursor")
)
