package storage

import (
	"context"
	"time"

	"github.com/iudanet/coursesync/internal/vclock"
)

// MetadataTx defines sync metadata available inside a transaction
type MetadataTx interface {
	// GetLastSyncTimestamp returns zero time if no sync has been performed yet
	GetLastSyncTimestamp() (time.Time, error)
	SaveLastSyncTimestamp(ts time.Time) error

	// GetCursor returns the server cursor of the last applied inbound batch (0 initially)
	GetCursor() (int64, error)
	SaveCursor(cursor int64) error

	// GetClock returns the persisted vector clock (empty initially)
	GetClock() (vclock.VectorClock, error)
	// MergeClock persists the component-wise max of the stored clock and clock
	MergeClock(clock vclock.VectorClock) error

	// GetDeviceID returns an empty string if the device id was never saved
	GetDeviceID() (string, error)
	SaveDeviceID(deviceID string) error

	// GetLastError returns the last sync error message (empty after a clean cycle)
	GetLastError() (string, error)
	SaveLastError(msg string) error
}

// MetadataStorage defines single-call accessors for client metadata
type MetadataStorage interface {
	// SaveLastError saves the message of the last failed sync cycle
	SaveLastError(ctx context.Context, msg string) error

	// GetLastError returns an empty string if the last cycle succeeded
	GetLastError(ctx context.Context) (string, error)

	// GetLastSyncTimestamp returns zero time if no sync has been performed yet
	GetLastSyncTimestamp(ctx context.Context) (time.Time, error)
}
