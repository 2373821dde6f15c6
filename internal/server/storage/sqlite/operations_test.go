package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/server/storage"
	"github.com/iudanet/coursesync/internal/vclock"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	// Используем in-memory database для тестов
	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func newOp(deviceID string, counter int64, entityID string) *models.SyncOperation {
	return &models.SyncOperation{
		Timestamp:     time.Date(2026, 10, 1, 12, 0, 0, int(counter), time.UTC),
		VectorClock:   vclock.VectorClock{deviceID: counter},
		ID:            uuid.NewString(),
		DeviceID:      deviceID,
		UserID:        "user-1",
		OperationType: models.OperationCreate,
		EntityType:    "course",
		EntityID:      entityID,
		Payload:       json.RawMessage(`{"title":"Go"}`),
	}
}

func TestSaveOperations_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	a1 := newOp("device-a", 1, "c1")
	a2 := newOp("device-a", 2, "c2")

	res, err := s.SaveOperations(ctx, "user-1", []*models.SyncOperation{a1, a2})
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID, a2.ID}, res.Inserted)
	assert.Empty(t, res.Duplicates)
	assert.Equal(t, int64(2), res.Cursor)

	// повторная отправка того же пакета
	res, err = s.SaveOperations(ctx, "user-1", []*models.SyncOperation{a1, a2})
	require.NoError(t, err)
	assert.Empty(t, res.Inserted)
	assert.Equal(t, []string{a1.ID, a2.ID}, res.Duplicates)
	assert.Zero(t, res.Cursor)

	latest, err := s.LatestCursor(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest, "duplicates do not advance the stream")
}

func TestSaveOperations_Empty(t *testing.T) {
	res, err := setupTestStorage(t).SaveOperations(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Inserted)
	assert.Empty(t, res.Rejected)
}

func TestSaveOperations_ForeignID(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	op := newOp("device-a", 1, "c1")
	_, err := s.SaveOperations(ctx, "user-1", []*models.SyncOperation{op})
	require.NoError(t, err)

	res, err := s.SaveOperations(ctx, "user-2", []*models.SyncOperation{op})
	require.NoError(t, err)
	require.Contains(t, res.Rejected, op.ID)
	assert.ErrorIs(t, res.Rejected[op.ID], storage.ErrOperationConflict)
}

func TestPullOperations(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	a1 := newOp("device-a", 1, "c1")
	b1 := newOp("device-b", 1, "c2")
	b2 := newOp("device-b", 2, "c2")
	b2.OperationType = models.OperationDelete
	b2.Payload = nil
	a2 := newOp("device-a", 2, "c1")

	for _, op := range []*models.SyncOperation{a1, b1, b2, a2} {
		_, err := s.SaveOperations(ctx, "user-1", []*models.SyncOperation{op})
		require.NoError(t, err)
	}
	// операции другого пользователя не видны
	_, err := s.SaveOperations(ctx, "user-2", []*models.SyncOperation{newOp("device-c", 1, "x")})
	require.NoError(t, err)

	t.Run("excludes own device and advances past own tail", func(t *testing.T) {
		res, err := s.PullOperations(ctx, "user-1", "device-b", 0, 10)
		require.NoError(t, err)
		require.Len(t, res.Operations, 2)
		assert.Equal(t, a1.ID, res.Operations[0].ID)
		assert.Equal(t, a2.ID, res.Operations[1].ID)
		assert.False(t, res.HasMore)
		assert.Equal(t, int64(4), res.Cursor)
	})

	t.Run("pages with has_more", func(t *testing.T) {
		res, err := s.PullOperations(ctx, "user-1", "device-a", 0, 1)
		require.NoError(t, err)
		require.Len(t, res.Operations, 1)
		assert.Equal(t, b1.ID, res.Operations[0].ID)
		assert.True(t, res.HasMore)
		assert.Equal(t, int64(2), res.Cursor)

		res, err = s.PullOperations(ctx, "user-1", "device-a", res.Cursor, 1)
		require.NoError(t, err)
		require.Len(t, res.Operations, 1)
		got := res.Operations[0]
		assert.Equal(t, b2.ID, got.ID)
		assert.Equal(t, models.OperationDelete, got.OperationType)
		assert.Nil(t, got.Payload)
		assert.False(t, res.HasMore)
		assert.Equal(t, int64(4), res.Cursor, "cursor skips the requester's own last op")

		res, err = s.PullOperations(ctx, "user-1", "device-a", res.Cursor, 1)
		require.NoError(t, err)
		assert.Empty(t, res.Operations)
		assert.Equal(t, int64(4), res.Cursor)
	})

	t.Run("round trips operation fields", func(t *testing.T) {
		res, err := s.PullOperations(ctx, "user-1", "device-x", 0, 1)
		require.NoError(t, err)
		require.Len(t, res.Operations, 1)
		got := res.Operations[0]
		assert.Equal(t, a1.Timestamp, got.Timestamp)
		assert.Equal(t, a1.VectorClock, got.VectorClock)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, "course", got.EntityType)
		assert.Equal(t, "c1", got.EntityID)
		assert.JSONEq(t, `{"title":"Go"}`, string(got.Payload))
	})

	t.Run("other user stream", func(t *testing.T) {
		res, err := s.PullOperations(ctx, "user-2", "device-z", 0, 10)
		require.NoError(t, err)
		require.Len(t, res.Operations, 1)
		assert.Equal(t, int64(5), res.Cursor)
	})
}

func TestPullOperations_InvalidCursor(t *testing.T) {
	s := setupTestStorage(t)

	_, err := s.PullOperations(context.Background(), "user-1", "device-a", -1, 10)
	assert.ErrorIs(t, err, storage.ErrInvalidCursor)

	_, err = s.PullOperations(context.Background(), "user-1", "device-a", 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidCursor)
}

func TestDevices(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	seen := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.TouchDevice(ctx, "user-1", "device-b", 3, seen))
	require.NoError(t, s.TouchDevice(ctx, "user-1", "device-a", 1, seen))
	require.NoError(t, s.TouchDevice(ctx, "user-1", "device-a", 7, seen.Add(time.Minute)))
	require.NoError(t, s.TouchDevice(ctx, "user-2", "device-c", 1, seen))

	devices, err := s.ListDevices(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "device-a", devices[0].DeviceID)
	assert.Equal(t, int64(7), devices[0].Cursor)
	assert.Equal(t, seen.Add(time.Minute), devices[0].LastSeenAt)
	assert.Equal(t, "device-b", devices[1].DeviceID)

	none, err := s.ListDevices(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/relay.db"

	s, err := New(ctx, path)
	require.NoError(t, err)
	_, err = s.SaveOperations(ctx, "user-1", []*models.SyncOperation{newOp("device-a", 1, "c1")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	latest, err := s.LatestCursor(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest)
}
