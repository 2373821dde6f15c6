package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/vclock"
)

const (
	keyLastSyncTimestamp = "last_sync_timestamp"
	keyCursor            = "cursor"
	keyVectorClock       = "vector_clock"
	keyDeviceID          = "device_id"
	keyLastError         = "last_error"
)

var _ storage.MetadataStorage = (*Storage)(nil)

// GetLastSyncTimestamp returns zero time if no sync has been performed yet
func (t *boltTx) GetLastSyncTimestamp() (time.Time, error) {
	v, ok, err := t.getInt64(keyLastSyncTimestamp)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return time.Unix(0, v), nil
}

// SaveLastSyncTimestamp saves the timestamp of the last successful sync
func (t *boltTx) SaveLastSyncTimestamp(ts time.Time) error {
	return t.putInt64(keyLastSyncTimestamp, ts.UnixNano())
}

// GetCursor returns the server cursor (0 initially)
func (t *boltTx) GetCursor() (int64, error) {
	v, _, err := t.getInt64(keyCursor)
	return v, err
}

// SaveCursor saves the server cursor
func (t *boltTx) SaveCursor(cursor int64) error {
	return t.putInt64(keyCursor, cursor)
}

// GetClock returns the persisted vector clock
func (t *boltTx) GetClock() (vclock.VectorClock, error) {
	bucket, err := t.bucket(bucketMetadata)
	if err != nil {
		return nil, err
	}

	clock := make(vclock.VectorClock)
	data := bucket.Get([]byte(keyVectorClock))
	if data == nil {
		return clock, nil
	}
	if err := json.Unmarshal(data, &clock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vector clock: %w", err)
	}
	return clock, nil
}

// MergeClock persists the component-wise max of the stored clock and clock
func (t *boltTx) MergeClock(clock vclock.VectorClock) error {
	stored, err := t.GetClock()
	if err != nil {
		return err
	}

	data, err := json.Marshal(stored.Merge(clock))
	if err != nil {
		return fmt.Errorf("failed to marshal vector clock: %w", err)
	}
	return t.put(keyVectorClock, data)
}

// GetDeviceID returns an empty string if the device id was never saved
func (t *boltTx) GetDeviceID() (string, error) {
	return t.getString(keyDeviceID)
}

// SaveDeviceID saves the local device id
func (t *boltTx) SaveDeviceID(deviceID string) error {
	return t.put(keyDeviceID, []byte(deviceID))
}

// GetLastError returns the last sync error message
func (t *boltTx) GetLastError() (string, error) {
	return t.getString(keyLastError)
}

// SaveLastError saves the last sync error message; empty clears it
func (t *boltTx) SaveLastError(msg string) error {
	return t.put(keyLastError, []byte(msg))
}

func (t *boltTx) put(key string, value []byte) error {
	bucket, err := t.bucket(bucketMetadata)
	if err != nil {
		return err
	}
	if err := bucket.Put([]byte(key), value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (t *boltTx) getString(key string) (string, error) {
	bucket, err := t.bucket(bucketMetadata)
	if err != nil {
		return "", err
	}
	return string(bucket.Get([]byte(key))), nil
}

func (t *boltTx) putInt64(key string, v int64) error {
	// Конвертируем int64 в bytes
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return t.put(key, b)
}

func (t *boltTx) getInt64(key string) (int64, bool, error) {
	bucket, err := t.bucket(bucketMetadata)
	if err != nil {
		return 0, false, err
	}

	b := bucket.Get([]byte(key))
	if b == nil {
		return 0, false, nil
	}
	if len(b) != 8 {
		return 0, false, fmt.Errorf("corrupted %s value", key)
	}
	return int64(binary.BigEndian.Uint64(b)), true, nil
}

// SaveLastError saves the message of the last failed sync cycle
func (s *Storage) SaveLastError(ctx context.Context, msg string) error {
	return s.Update(ctx, func(tx storage.Tx) error {
		return tx.SaveLastError(msg)
	})
}

// GetLastError returns an empty string if the last cycle succeeded
func (s *Storage) GetLastError(ctx context.Context) (string, error) {
	var msg string
	err := s.View(ctx, func(tx storage.Tx) error {
		var err error
		msg, err = tx.GetLastError()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get last error: %w", err)
	}
	return msg, nil
}

// GetLastSyncTimestamp retrieves the timestamp of the last successful sync
// Returns zero time if no sync has been performed yet
func (s *Storage) GetLastSyncTimestamp(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.View(ctx, func(tx storage.Tx) error {
		var err error
		ts, err = tx.GetLastSyncTimestamp()
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync timestamp: %w", err)
	}
	return ts, nil
}
