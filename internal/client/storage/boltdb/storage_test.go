package boltdb

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/vclock"
)

// createTestStorage создает временное хранилище для тестов
func createTestStorage(t *testing.T) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

// createTestOperation создает тестовую операцию
func createTestOperation(id, device string, opType models.OperationType, entityID string, counter int64) *models.SyncOperation {
	return &models.SyncOperation{
		Timestamp:     time.Now().UTC(),
		VectorClock:   vclock.VectorClock{device: counter},
		ID:            id,
		DeviceID:      device,
		UserID:        "user-1",
		OperationType: opType,
		EntityType:    "course",
		EntityID:      entityID,
		Payload:       json.RawMessage(`{"title":"` + id + `"}`),
	}
}

func TestNew_Success(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "testdb.db")

	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()

	// Проверяем что файл БД действительно создан
	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	// Проверяем, что бакеты существуют
	err = store.db.View(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if tx.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	// Путь внутри несуществующей директории
	invalidPath := filepath.Join(t.TempDir(), "missing", "dir", "test.db")

	store, err := New(context.Background(), invalidPath)
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "testdb.db")
	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	// Повторное закрытие не должно падать
	require.NoError(t, store.Close())

	err = store.Update(context.Background(), func(tx storage.Tx) error { return nil })
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	err = store.View(context.Background(), func(tx storage.Tx) error { return nil })
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestUpdate_CanceledContext(t *testing.T) {
	store := createTestStorage(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Update(ctx, func(tx storage.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdate_RollbackOnError(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	op := createTestOperation("op-1", "device-a", models.OperationCreate, "c1", 1)

	err := store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.SaveOperation(op); err != nil {
			return err
		}
		if err := tx.Enqueue(op.ID); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	// Ни операция, ни очередь не должны сохраниться
	err = store.View(ctx, func(tx storage.Tx) error {
		_, err := tx.GetOperation("op-1")
		assert.ErrorIs(t, err, storage.ErrOperationNotFound)

		count, err := tx.CountPending()
		require.NoError(t, err)
		assert.Zero(t, count)
		return nil
	})
	require.NoError(t, err)
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := New(ctx, dbPath)
	require.NoError(t, err)

	err = store.Update(ctx, func(tx storage.Tx) error {
		for i, id := range []string{"op-1", "op-2"} {
			op := createTestOperation(id, "device-a", models.OperationCreate, "c"+id, int64(i+1))
			if err := tx.SaveOperation(op); err != nil {
				return err
			}
			if err := tx.Enqueue(id); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()

	err = reopened.View(ctx, func(tx storage.Tx) error {
		pending, err := tx.PendingOperations(0)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "op-1", pending[0].ID)
		assert.Equal(t, "op-2", pending[1].ID)
		return nil
	})
	require.NoError(t, err)
}
