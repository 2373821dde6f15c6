package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/vclock"
)

func TestMetadata_Defaults(t *testing.T) {
	s := createTestStorage(t)

	err := s.View(context.Background(), func(tx storage.Tx) error {
		ts, err := tx.GetLastSyncTimestamp()
		require.NoError(t, err)
		assert.True(t, ts.IsZero())

		cursor, err := tx.GetCursor()
		require.NoError(t, err)
		assert.Zero(t, cursor)

		clock, err := tx.GetClock()
		require.NoError(t, err)
		assert.Empty(t, clock)

		deviceID, err := tx.GetDeviceID()
		require.NoError(t, err)
		assert.Empty(t, deviceID)

		msg, err := tx.GetLastError()
		require.NoError(t, err)
		assert.Empty(t, msg)
		return nil
	})
	require.NoError(t, err)
}

func TestMetadata_SaveAndGet(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := s.Update(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.SaveLastSyncTimestamp(ts))
		require.NoError(t, tx.SaveCursor(42))
		require.NoError(t, tx.SaveDeviceID("device-a"))
		require.NoError(t, tx.MergeClock(vclock.VectorClock{"device-a": 3, "device-b": 1}))
		require.NoError(t, tx.MergeClock(vclock.VectorClock{"device-a": 1, "device-b": 5}))
		return nil
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx storage.Tx) error {
		got, err := tx.GetLastSyncTimestamp()
		require.NoError(t, err)
		assert.True(t, ts.Equal(got))

		cursor, err := tx.GetCursor()
		require.NoError(t, err)
		assert.Equal(t, int64(42), cursor)

		deviceID, err := tx.GetDeviceID()
		require.NoError(t, err)
		assert.Equal(t, "device-a", deviceID)

		clock, err := tx.GetClock()
		require.NoError(t, err)
		assert.Equal(t, vclock.VectorClock{"device-a": 3, "device-b": 5}, clock)
		return nil
	})
	require.NoError(t, err)

	last, err := s.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.True(t, ts.Equal(last))
}

func TestMetadata_LastError(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLastError(ctx, "transport: connection refused"))

	msg, err := s.GetLastError(ctx)
	require.NoError(t, err)
	assert.Equal(t, "transport: connection refused", msg)

	require.NoError(t, s.SaveLastError(ctx, ""))
	msg, err = s.GetLastError(ctx)
	require.NoError(t, err)
	assert.Empty(t, msg)
}
