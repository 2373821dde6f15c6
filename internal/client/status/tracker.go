// Package status derives and exposes per-entity synchronization status.
package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/models"
)

// Settle пересчитывает статус сущности по журналу и сохраняет его.
// Вызывается внутри той же транзакции, что и изменение журнала или сущности.
//
// Правила:
//   - есть неподтвержденные операции: последняя delete -> PendingDelete,
//     иначе есть create -> PendingCreate, иначе PendingUpdate;
//   - иначе есть локальная сущность -> Synced;
//   - иначе есть только ссылки -> RemoteOnly;
//   - иначе статус удаляется.
func Settle(tx storage.Tx, entityType, entityID string) (models.EntityStatus, error) {
	ops, err := tx.EntityOperations(entityType, entityID)
	if err != nil {
		return "", fmt.Errorf("failed to load entity operations: %w", err)
	}

	var pending []*models.SyncOperation
	for _, op := range ops {
		if !op.Synced && op.OperationType != models.OperationReference {
			pending = append(pending, op)
		}
	}

	status, err := derive(tx, entityType, entityID, pending)
	if err != nil {
		return "", err
	}

	if status == "" {
		if err := tx.DeleteStatus(entityType, entityID); err != nil {
			return "", err
		}
		return "", nil
	}

	if err := tx.SetStatus(entityType, entityID, status); err != nil {
		return "", err
	}
	return status, nil
}

func derive(tx storage.Tx, entityType, entityID string, pending []*models.SyncOperation) (models.EntityStatus, error) {
	if len(pending) > 0 {
		if pending[len(pending)-1].OperationType == models.OperationDelete {
			return models.StatusPendingDelete, nil
		}
		for _, op := range pending {
			if op.OperationType == models.OperationCreate {
				return models.StatusPendingCreate, nil
			}
		}
		return models.StatusPendingUpdate, nil
	}

	_, err := tx.GetEntity(entityType, entityID)
	if err == nil {
		return models.StatusSynced, nil
	}
	if !errors.Is(err, storage.ErrEntityNotFound) {
		return "", err
	}

	refs, err := tx.ListReferences(entityType, entityID)
	if err != nil {
		return "", err
	}
	if len(refs) > 0 {
		return models.StatusRemoteOnly, nil
	}
	return "", nil
}

// Tracker отдает снимки SyncState читателям (UI, CLI)
type Tracker struct {
	store storage.Store
}

// NewTracker creates a status tracker over the local store
func NewTracker(store storage.Store) *Tracker {
	return &Tracker{store: store}
}

// Snapshot returns a consistent copy of the sync state.
func (t *Tracker) Snapshot(ctx context.Context) (*models.SyncState, error) {
	state := models.NewSyncState()

	err := t.store.View(ctx, func(tx storage.Tx) error {
		ts, err := tx.GetLastSyncTimestamp()
		if err != nil {
			return err
		}
		state.LastSyncTimestamp = ts

		statuses, err := tx.ListStatuses()
		if err != nil {
			return err
		}
		state.Entities = statuses
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}

	return state, nil
}

// Get returns the status of a single entity.
// Returns storage.ErrStatusNotFound for untracked entities
func (t *Tracker) Get(ctx context.Context, entityType, entityID string) (models.EntityStatus, error) {
	var status models.EntityStatus
	err := t.store.View(ctx, func(tx storage.Tx) error {
		var err error
		status, err = tx.GetStatus(entityType, entityID)
		return err
	})
	return status, err
}
