package oplog

import (
	"errors"
	"fmt"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/models"
)

// ApplyEffect материализует эффект операции в хранилище сущностей без
// проверки предусловий. Используется и для локальных, и для удаленных операций.
func ApplyEffect(tx storage.Tx, op *models.SyncOperation) error {
	switch op.OperationType {
	case models.OperationCreate, models.OperationUpdate:
		return tx.PutEntity(&models.Entity{
			UpdatedAt:       op.Timestamp,
			Type:            op.EntityType,
			ID:              op.EntityID,
			LastOperationID: op.ID,
			Payload:         op.Payload,
		})

	case models.OperationDelete:
		entity, err := tx.GetEntity(op.EntityType, op.EntityID)
		if errors.Is(err, storage.ErrEntityNotFound) {
			entity = &models.Entity{Type: op.EntityType, ID: op.EntityID}
		} else if err != nil {
			return err
		}
		// tombstone сохраняет последний payload для восстановления
		entity.Deleted = true
		entity.UpdatedAt = op.Timestamp
		entity.LastOperationID = op.ID
		return tx.PutEntity(entity)

	case models.OperationReference:
		return tx.PutReference(&models.Reference{
			CreatedAt:   op.Timestamp,
			OperationID: op.ID,
			DeviceID:    op.DeviceID,
			EntityType:  op.EntityType,
			EntityID:    op.EntityID,
			Payload:     op.Payload,
		})

	default:
		return fmt.Errorf("%w: %q", models.ErrUnknownOperationType, op.OperationType)
	}
}

// checkPrecondition проверяет, что локальное изменение согласуется
// с текущим состоянием сущности.
func checkPrecondition(tx storage.Tx, op *models.SyncOperation) error {
	if op.OperationType == models.OperationReference {
		return nil
	}

	entity, err := tx.GetEntity(op.EntityType, op.EntityID)
	if err != nil && !errors.Is(err, storage.ErrEntityNotFound) {
		return err
	}
	exists := err == nil

	switch op.OperationType {
	case models.OperationCreate:
		if exists && !entity.Deleted {
			return fmt.Errorf("%w: %s", ErrEntityExists, op.Key())
		}
	case models.OperationUpdate, models.OperationDelete:
		if !exists {
			return fmt.Errorf("%w: %s", storage.ErrEntityNotFound, op.Key())
		}
		if entity.Deleted {
			return fmt.Errorf("%w: %s", ErrEntityDeleted, op.Key())
		}
	}
	return nil
}
