package oplog

import "errors"

var (
	// ErrUnknownEntityType indicates an entity type outside the configured set
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrInvalidPayload indicates a missing or malformed JSON payload
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrMissingEntityID indicates an update, delete or reference without entity id
	ErrMissingEntityID = errors.New("missing entity id")

	// ErrInvalidEntityKey indicates an entity type or id containing a NUL byte
	ErrInvalidEntityKey = errors.New("invalid entity key")

	// ErrEntityExists indicates a create over a live entity
	ErrEntityExists = errors.New("entity already exists")

	// ErrEntityDeleted indicates a change to a tombstoned entity
	ErrEntityDeleted = errors.New("entity is deleted")
)
