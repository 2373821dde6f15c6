package boltdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/models"
)

// SaveConflict appends a conflict audit record
func (t *boltTx) SaveConflict(rec *models.ConflictRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return t.appendJSON(bucketConflicts, rec)
}

// ListConflicts returns conflict records in insertion order
func (t *boltTx) ListConflicts() ([]*models.ConflictRecord, error) {
	var result []*models.ConflictRecord
	err := t.forEachJSON(bucketConflicts, func(data []byte) error {
		rec := &models.ConflictRecord{}
		if err := json.Unmarshal(data, rec); err != nil {
			return fmt.Errorf("failed to unmarshal conflict: %w", err)
		}
		result = append(result, rec)
		return nil
	})
	return result, err
}

// SaveSideRecord preserves a losing payload
func (t *boltTx) SaveSideRecord(rec *models.SideRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return t.appendJSON(bucketSideRecords, rec)
}

// ListSideRecords returns side records in insertion order
func (t *boltTx) ListSideRecords() ([]*models.SideRecord, error) {
	var result []*models.SideRecord
	err := t.forEachJSON(bucketSideRecords, func(data []byte) error {
		rec := &models.SideRecord{}
		if err := json.Unmarshal(data, rec); err != nil {
			return fmt.Errorf("failed to unmarshal side record: %w", err)
		}
		result = append(result, rec)
		return nil
	})
	return result, err
}

// QuarantineOperation moves an operation out of the normal flow
func (t *boltTx) QuarantineOperation(q *models.QuarantinedOperation) error {
	quarantine, err := t.bucket(bucketQuarantine)
	if err != nil {
		return err
	}

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quarantined operation: %w", err)
	}
	if err := quarantine.Put([]byte(q.Operation.ID), data); err != nil {
		return fmt.Errorf("failed to quarantine operation: %w", err)
	}

	// локальная операция: помечаем запись журнала и убираем из очереди
	rec, err := t.getRecord(q.Operation.ID)
	if errors.Is(err, storage.ErrOperationNotFound) {
		// удаленная операция в журнал не попадала
		return nil
	}
	if err != nil {
		return err
	}
	rec.Quarantined = true
	if err := t.putRecord(rec); err != nil {
		return err
	}

	queue, err := t.bucket(bucketQueue)
	if err != nil {
		return err
	}
	if err := queue.Delete(itob(rec.Seq)); err != nil {
		return fmt.Errorf("failed to dequeue operation: %w", err)
	}
	return nil
}

// ListQuarantined returns quarantined operations ordered by operation id
func (t *boltTx) ListQuarantined() ([]*models.QuarantinedOperation, error) {
	var result []*models.QuarantinedOperation
	err := t.forEachJSON(bucketQuarantine, func(data []byte) error {
		q := &models.QuarantinedOperation{}
		if err := json.Unmarshal(data, q); err != nil {
			return fmt.Errorf("failed to unmarshal quarantined operation: %w", err)
		}
		result = append(result, q)
		return nil
	})
	return result, err
}

// appendJSON сохраняет значение под следующим sequence ключом bucket
func (t *boltTx) appendJSON(name []byte, v any) error {
	b, err := t.bucket(name)
	if err != nil {
		return err
	}

	seq, err := b.NextSequence()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", name, err)
	}
	if err := b.Put(itob(seq), data); err != nil {
		return fmt.Errorf("failed to save %s record: %w", name, err)
	}
	return nil
}

func (t *boltTx) forEachJSON(name []byte, fn func(data []byte) error) error {
	b, err := t.bucket(name)
	if err != nil {
		return err
	}
	return b.ForEach(func(_, v []byte) error {
		return fn(v)
	})
}
