package boltdb

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/models"
)

// operationRecord запись журнала в bucket operations.
// Seq задает порядок журнала и ключ в очереди.
type operationRecord struct {
	Operation   *models.SyncOperation `json:"operation"`
	Seq         uint64                `json:"seq"`
	Quarantined bool                  `json:"quarantined,omitempty"`
}

// SaveOperation appends an operation to the log and indexes it by entity
func (t *boltTx) SaveOperation(op *models.SyncOperation) error {
	ops, err := t.bucket(bucketOperations)
	if err != nil {
		return err
	}
	if ops.Get([]byte(op.ID)) != nil {
		return fmt.Errorf("%w: %s", storage.ErrOperationExists, op.ID)
	}

	seq, err := ops.NextSequence()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}

	rec := &operationRecord{Operation: op, Seq: seq}
	if err := t.putRecord(rec); err != nil {
		return err
	}

	index, err := t.bucket(bucketEntityOps)
	if err != nil {
		return err
	}
	if err := index.Put(entityOpKey(op.EntityType, op.EntityID, seq), []byte(op.ID)); err != nil {
		return fmt.Errorf("failed to index operation: %w", err)
	}

	return nil
}

// GetOperation retrieves an operation by ID
func (t *boltTx) GetOperation(id string) (*models.SyncOperation, error) {
	rec, err := t.getRecord(id)
	if err != nil {
		return nil, err
	}
	return rec.Operation, nil
}

// Enqueue adds a logged operation to the sync queue
func (t *boltTx) Enqueue(id string) error {
	rec, err := t.getRecord(id)
	if err != nil {
		return err
	}

	queue, err := t.bucket(bucketQueue)
	if err != nil {
		return err
	}
	if err := queue.Put(itob(rec.Seq), []byte(id)); err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return nil
}

// PendingOperations returns queued operations in FIFO order
func (t *boltTx) PendingOperations(limit int) ([]*models.SyncOperation, error) {
	queue, err := t.bucket(bucketQueue)
	if err != nil {
		return nil, err
	}

	var result []*models.SyncOperation
	c := queue.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if limit > 0 && len(result) >= limit {
			break
		}
		op, err := t.GetOperation(string(v))
		if err != nil {
			return nil, fmt.Errorf("queued operation %s: %w", v, err)
		}
		result = append(result, op)
	}

	return result, nil
}

// CountPending returns the number of queued operations
func (t *boltTx) CountPending() (int, error) {
	queue, err := t.bucket(bucketQueue)
	if err != nil {
		return 0, err
	}
	count := 0
	c := queue.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	return count, nil
}

// EntityOperations returns the logged operations on the entity in log order.
// Quarantined operations are excluded: они не участвуют ни в сверке, ни в статусе.
func (t *boltTx) EntityOperations(entityType, entityID string) ([]*models.SyncOperation, error) {
	index, err := t.bucket(bucketEntityOps)
	if err != nil {
		return nil, err
	}

	prefix := entityPrefix(entityType, entityID)
	var result []*models.SyncOperation

	c := index.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		rec, err := t.getRecord(string(v))
		if err != nil {
			return nil, fmt.Errorf("indexed operation %s: %w", v, err)
		}
		if rec.Quarantined {
			continue
		}
		result = append(result, rec.Operation)
	}

	return result, nil
}

// MarkSynced flips synced and removes the operation from the queue
func (t *boltTx) MarkSynced(id string, at time.Time) error {
	rec, err := t.getRecord(id)
	if err != nil {
		return err
	}

	if !rec.Operation.Synced {
		syncedAt := at
		rec.Operation.Synced = true
		rec.Operation.SyncedAt = &syncedAt
		if err := t.putRecord(rec); err != nil {
			return err
		}
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

// RebuildQueue rebuilds the queue from unsynced, non-quarantined operations
func (t *boltTx) RebuildQueue() (int, error) {
	if err := t.tx.DeleteBucket(bucketQueue); err != nil {
		return 0, fmt.Errorf("failed to drop queue: %w", err)
	}
	queue, err := t.tx.CreateBucket(bucketQueue)
	if err != nil {
		return 0, fmt.Errorf("failed to recreate queue: %w", err)
	}

	count := 0
	err = t.forEachRecord(func(rec *operationRecord) error {
		if rec.Operation.Synced || rec.Quarantined {
			return nil
		}
		count++
		return queue.Put(itob(rec.Seq), []byte(rec.Operation.ID))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild queue: %w", err)
	}

	return count, nil
}

// ForEachOperation iterates over the log in log order
func (t *boltTx) ForEachOperation(fn func(op *models.SyncOperation) error) error {
	return t.forEachRecord(func(rec *operationRecord) error {
		return fn(rec.Operation)
	})
}

// DeleteSyncedBefore removes synced operations and applied markers older than before.
// Operations listed in keep are not removed.
func (t *boltTx) DeleteSyncedBefore(before time.Time, keep map[string]struct{}) (int, error) {
	var stale []*operationRecord
	err := t.forEachRecord(func(rec *operationRecord) error {
		op := rec.Operation
		if _, ok := keep[op.ID]; ok {
			return nil
		}
		if op.Synced && op.SyncedAt != nil && op.SyncedAt.Before(before) {
			stale = append(stale, rec)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	ops, err := t.bucket(bucketOperations)
	if err != nil {
		return 0, err
	}
	index, err := t.bucket(bucketEntityOps)
	if err != nil {
		return 0, err
	}

	for _, rec := range stale {
		op := rec.Operation
		if err := index.Delete(entityOpKey(op.EntityType, op.EntityID, rec.Seq)); err != nil {
			return 0, fmt.Errorf("failed to delete index entry: %w", err)
		}
		if err := ops.Delete([]byte(op.ID)); err != nil {
			return 0, fmt.Errorf("failed to delete operation: %w", err)
		}
	}

	// маркеры примененных удаленных операций
	applied, err := t.bucket(bucketApplied)
	if err != nil {
		return 0, err
	}
	var expired [][]byte
	err = applied.ForEach(func(k, v []byte) error {
		if len(v) == 8 && time.Unix(0, int64(btoi(v))).Before(before) {
			expired = append(expired, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, k := range expired {
		if err := applied.Delete(k); err != nil {
			return 0, fmt.Errorf("failed to delete applied marker: %w", err)
		}
	}

	return len(stale), nil
}

// IsApplied reports whether a remote operation was already applied
func (t *boltTx) IsApplied(id string) (bool, error) {
	applied, err := t.bucket(bucketApplied)
	if err != nil {
		return false, err
	}
	return applied.Get([]byte(id)) != nil, nil
}

// MarkApplied records that a remote operation was applied
func (t *boltTx) MarkApplied(id string, at time.Time) error {
	applied, err := t.bucket(bucketApplied)
	if err != nil {
		return err
	}
	if err := applied.Put([]byte(id), itob(uint64(at.UnixNano()))); err != nil {
		return fmt.Errorf("failed to mark operation applied: %w", err)
	}
	return nil
}

func (t *boltTx) getRecord(id string) (*operationRecord, error) {
	ops, err := t.bucket(bucketOperations)
	if err != nil {
		return nil, err
	}

	data := ops.Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrOperationNotFound, id)
	}

	rec := &operationRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operation: %w", err)
	}
	return rec, nil
}

func (t *boltTx) putRecord(rec *operationRecord) error {
	ops, err := t.bucket(bucketOperations)
	if err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal operation: %w", err)
	}
	if err := ops.Put([]byte(rec.Operation.ID), data); err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

// forEachRecord обходит журнал в порядке Seq
func (t *boltTx) forEachRecord(fn func(rec *operationRecord) error) error {
	ops, err := t.bucket(bucketOperations)
	if err != nil {
		return err
	}

	// bucket operations упорядочен по id, поэтому сначала собираем и сортируем
	var records []*operationRecord
	err = ops.ForEach(func(k, v []byte) error {
		rec := &operationRecord{}
		if err := json.Unmarshal(v, rec); err != nil {
			return fmt.Errorf("failed to unmarshal operation %s: %w", k, err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return err
	}

	slices.SortFunc(records, func(a, b *operationRecord) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
