package storage

import (
	"time"

	"github.com/iudanet/coursesync/internal/models"
)

// OperationTx defines the append-only operation log and the durable sync queue
type OperationTx interface {
	// SaveOperation appends an operation to the log
	// Returns ErrOperationExists if an operation with the same id is logged
	SaveOperation(op *models.SyncOperation) error

	// GetOperation retrieves an operation by ID
	// Returns ErrOperationNotFound if operation doesn't exist
	GetOperation(id string) (*models.SyncOperation, error)

	// Enqueue adds a logged operation to the sync queue (FIFO by log order)
	Enqueue(id string) error

	// PendingOperations returns up to limit queued operations in FIFO order
	// without removing them. limit <= 0 returns the whole queue
	PendingOperations(limit int) ([]*models.SyncOperation, error)

	// CountPending returns the number of queued operations
	CountPending() (int, error)

	// EntityOperations returns every logged operation on the entity in log order
	EntityOperations(entityType, entityID string) ([]*models.SyncOperation, error)

	// MarkSynced flips synced, sets synced_at and removes the operation from the queue
	MarkSynced(id string, at time.Time) error

	// RebuildQueue rebuilds the queue from unsynced, non-quarantined operations
	// Used on startup after a crash between drain and acknowledgement
	RebuildQueue() (int, error)

	// ForEachOperation iterates over the whole log in log order
	ForEachOperation(fn func(op *models.SyncOperation) error) error

	// DeleteSyncedBefore removes synced operations and applied markers older than before.
	// Operations whose id is in keep stay in the log regardless of age
	DeleteSyncedBefore(before time.Time, keep map[string]struct{}) (int, error)

	// IsApplied reports whether a remote operation was already applied
	IsApplied(id string) (bool, error)

	// MarkApplied records that a remote operation was applied
	MarkApplied(id string, at time.Time) error
}
