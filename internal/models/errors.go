package models

import "errors"

var (
	// ErrUnknownOperationType indicates an operation type outside create/update/delete/reference
	ErrUnknownOperationType = errors.New("unknown operation type")

	// ErrInvalidOperation indicates a structurally broken operation
	ErrInvalidOperation = errors.New("invalid operation")
)
