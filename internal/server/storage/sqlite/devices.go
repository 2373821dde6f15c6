package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/coursesync/internal/server/storage"
)

// TouchDevice запоминает последнюю синхронизацию устройства
func (s *Storage) TouchDevice(ctx context.Context, userID, deviceID string, cursor int64, seenAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (user_id, device_id, cursor, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, device_id) DO UPDATE SET
			cursor = excluded.cursor,
			last_seen_at = excluded.last_seen_at
	`, userID, deviceID, cursor, seenAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return nil
}

// ListDevices возвращает устройства пользователя, отсортированные по id
func (s *Storage) ListDevices(ctx context.Context, userID string) ([]*storage.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, cursor, last_seen_at
		FROM devices
		WHERE user_id = ?
		ORDER BY device_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	devices := make([]*storage.Device, 0)
	for rows.Next() {
		d := &storage.Device{UserID: userID}
		var seen int64
		if err := rows.Scan(&d.DeviceID, &d.Cursor, &seen); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.LastSeenAt = time.Unix(0, seen).UTC()
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}
