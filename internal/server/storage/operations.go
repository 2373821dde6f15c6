package storage

import (
	"context"
	"time"

	"github.com/iudanet/coursesync/internal/models"
)

// SaveResult итог сохранения пакета операций
type SaveResult struct {
	Rejected   map[string]error // id занят операцией другого пользователя
	Inserted   []string
	Duplicates []string // уже сохранены ранее, повторная отправка
	Cursor     int64    // наибольшая позиция среди вставленных операций
}

// PullResult порция операций других устройств пользователя
type PullResult struct {
	Operations []*models.SyncOperation
	Cursor     int64
	HasMore    bool
}

// Device последняя синхронизация устройства пользователя
type Device struct {
	LastSeenAt time.Time `json:"last_seen_at"`
	UserID     string    `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	Cursor     int64     `json:"cursor"`
}

// OperationStorage хранилище журнала операций relay сервера.
// Позиции (cursor) монотонно растут, операции неизменяемы.
type OperationStorage interface {
	// SaveOperations идемпотентно сохраняет операции пользователя.
	// Повторно присланные операции попадают в Duplicates.
	SaveOperations(ctx context.Context, userID string, ops []*models.SyncOperation) (*SaveResult, error)

	// PullOperations возвращает до limit операций пользователя после cursor,
	// исключая операции устройства excludeDevice.
	PullOperations(ctx context.Context, userID, excludeDevice string, cursor int64, limit int) (*PullResult, error)

	// LatestCursor возвращает наибольшую позицию операций пользователя
	LatestCursor(ctx context.Context, userID string) (int64, error)
}

// DeviceStorage учет устройств, обращавшихся к серверу
type DeviceStorage interface {
	TouchDevice(ctx context.Context, userID, deviceID string, cursor int64, seenAt time.Time) error
	ListDevices(ctx context.Context, userID string) ([]*Device, error)
}
