// Package oplog implements the append-only operation log and the durable sync queue.
package oplog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/coursesync/internal/client/status"
	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/conflict"
	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/vclock"
)

// Mutation локальное изменение, поступающее из командного слоя
type Mutation struct {
	Type       models.OperationType
	EntityType string
	EntityID   string // для create может быть пустым - будет выдан временный UUID
	Payload    json.RawMessage
}

// Config параметры журнала
type Config struct {
	DeviceID    string
	UserID      string
	EntityTypes []string // пустой список - принимаются любые типы
}

// Log журнал операций и очередь синхронизации поверх локального хранилища
type Log struct {
	store       storage.Store
	clock       *vclock.Clock
	logger      *slog.Logger
	entityTypes map[string]struct{}
	now         func() time.Time
	deviceID    string
	userID      string
}

// Open восстанавливает часы и очередь из хранилища и возвращает журнал.
// Часы инициализируются максимумом сохраненного состояния и часов всех
// операций журнала; очередь перестраивается по неподтвержденным операциям.
func Open(ctx context.Context, store storage.Store, cfg Config, logger *slog.Logger) (*Log, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("device id is required")
	}

	l := &Log{
		store:       store,
		logger:      logger,
		entityTypes: make(map[string]struct{}, len(cfg.EntityTypes)),
		now:         time.Now,
		deviceID:    cfg.DeviceID,
		userID:      cfg.UserID,
	}
	for _, t := range cfg.EntityTypes {
		l.entityTypes[t] = struct{}{}
	}

	var initial vclock.VectorClock
	var pending int

	err := store.Update(ctx, func(tx storage.Tx) error {
		persisted, err := tx.GetClock()
		if err != nil {
			return fmt.Errorf("failed to load clock: %w", err)
		}
		initial = persisted

		err = tx.ForEachOperation(func(op *models.SyncOperation) error {
			initial = initial.Merge(op.VectorClock)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to scan operation log: %w", err)
		}

		if err := tx.MergeClock(initial); err != nil {
			return err
		}

		pending, err = tx.RebuildQueue()
		if err != nil {
			return fmt.Errorf("failed to rehydrate queue: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.clock = vclock.NewFrom(cfg.DeviceID, initial)

	logger.Info("Operation log opened",
		"device_id", cfg.DeviceID,
		"pending", pending,
		"clock", initial.String())

	return l, nil
}

// Clock returns the device clock shared with the sync engine.
func (l *Log) Clock() *vclock.Clock {
	return l.clock
}

// DeviceID returns the local device id.
func (l *Log) DeviceID() string {
	return l.deviceID
}

// UserID returns the user the device acts for.
func (l *Log) UserID() string {
	return l.userID
}

// KnowsEntityType reports whether operations of this entity type are accepted.
func (l *Log) KnowsEntityType(entityType string) bool {
	if len(l.entityTypes) == 0 {
		return entityType != ""
	}
	_, ok := l.entityTypes[entityType]
	return ok
}

// Append записывает локальное изменение: присваивает UUID, тикает часы,
// сохраняет операцию, ставит ее в очередь, применяет локальный эффект и
// обновляет статус сущности - все в одной транзакции.
func (l *Log) Append(ctx context.Context, m Mutation) (*models.SyncOperation, error) {
	if err := l.validate(m); err != nil {
		return nil, err
	}

	entityID := m.EntityID
	if entityID == "" {
		// временный идентификатор для сущности, созданной офлайн
		entityID = uuid.New().String()
	}

	op := &models.SyncOperation{
		Timestamp:     l.now().UTC(),
		VectorClock:   l.clock.Tick(),
		ID:            uuid.New().String(),
		DeviceID:      l.deviceID,
		UserID:        l.userID,
		OperationType: m.Type,
		EntityType:    m.EntityType,
		EntityID:      entityID,
		Payload:       m.Payload,
	}

	err := l.store.Update(ctx, func(tx storage.Tx) error {
		if err := checkPrecondition(tx, op); err != nil {
			return err
		}
		if err := ApplyEffect(tx, op); err != nil {
			return err
		}
		if err := tx.SaveOperation(op); err != nil {
			return err
		}
		if err := tx.Enqueue(op.ID); err != nil {
			return err
		}
		if err := tx.MergeClock(op.VectorClock); err != nil {
			return err
		}
		_, err := status.Settle(tx, op.EntityType, op.EntityID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append operation: %w", err)
	}

	l.logger.Debug("Operation appended",
		"operation_id", op.ID,
		"type", op.OperationType,
		"entity", op.Key().String())

	return op, nil
}

// Drain возвращает до max операций из очереди в порядке FIFO, не удаляя их.
// Операции уходят из очереди только после MarkSynced.
func (l *Log) Drain(ctx context.Context, max int) ([]*models.SyncOperation, error) {
	var ops []*models.SyncOperation
	err := l.store.View(ctx, func(tx storage.Tx) error {
		var err error
		ops, err = tx.PendingOperations(max)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain queue: %w", err)
	}
	return ops, nil
}

// MarkSynced отмечает операции подтвержденными и убирает их из очереди.
// Неизвестные id пропускаются с предупреждением.
func (l *Log) MarkSynced(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	at := l.now().UTC()
	marked := 0

	err := l.store.Update(ctx, func(tx storage.Tx) error {
		marked = 0
		touched := make(map[models.EntityKey]struct{})
		for _, id := range ids {
			op, err := tx.GetOperation(id)
			if errors.Is(err, storage.ErrOperationNotFound) {
				l.logger.Warn("Acknowledged operation not found in log", "operation_id", id)
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.MarkSynced(id, at); err != nil {
				return err
			}
			touched[op.Key()] = struct{}{}
			marked++
		}
		for key := range touched {
			if _, err := status.Settle(tx, key.Type, key.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark operations synced: %w", err)
	}

	return marked, nil
}

// Pending returns the number of queued operations.
func (l *Log) Pending(ctx context.Context) (int, error) {
	var count int
	err := l.store.View(ctx, func(tx storage.Tx) error {
		var err error
		count, err = tx.CountPending()
		return err
	})
	return count, err
}

// Rehydrate rebuilds the queue from unsynced operations in the log.
func (l *Log) Rehydrate(ctx context.Context) (int, error) {
	var count int
	err := l.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		count, err = tx.RebuildQueue()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rehydrate queue: %w", err)
	}
	return count, nil
}

// Compact удаляет подтвержденные операции и маркеры примененных операций
// старше before. Неподтвержденные операции не трогаются, как и операции,
// которые определяют текущее состояние сущностей (conflict.Anchors).
func (l *Log) Compact(ctx context.Context, before time.Time) (int, error) {
	var removed int
	err := l.store.Update(ctx, func(tx storage.Tx) error {
		keep, err := anchors(tx)
		if err != nil {
			return err
		}
		removed, err = tx.DeleteSyncedBefore(before, keep)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to compact operation log: %w", err)
	}

	if removed > 0 {
		l.logger.Info("Operation log compacted", "removed", removed, "before", before)
	}
	return removed, nil
}

// anchors собирает операции, определяющие состояние каждой сущности журнала
func anchors(tx storage.Tx) (map[string]struct{}, error) {
	seen := make(map[models.EntityKey]struct{})
	var keys []models.EntityKey
	err := tx.ForEachOperation(func(op *models.SyncOperation) error {
		key := op.Key()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan operation log: %w", err)
	}

	keep := make(map[string]struct{})
	for _, key := range keys {
		history, err := tx.EntityOperations(key.Type, key.ID)
		if err != nil {
			return nil, err
		}
		maps.Copy(keep, conflict.Anchors(history))
	}
	return keep, nil
}

func (l *Log) validate(m Mutation) error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownOperationType, m.Type)
	}
	if strings.ContainsRune(m.EntityType, 0) || strings.ContainsRune(m.EntityID, 0) {
		return fmt.Errorf("%w: NUL byte in %s/%q", ErrInvalidEntityKey, m.EntityType, m.EntityID)
	}
	if !l.KnowsEntityType(m.EntityType) {
		return fmt.Errorf("%w: %q", ErrUnknownEntityType, m.EntityType)
	}
	if m.Type != models.OperationCreate && m.EntityID == "" {
		return fmt.Errorf("%w: %s %s", ErrMissingEntityID, m.Type, m.EntityType)
	}
	return ValidatePayload(m.Type, m.Payload)
}

// ValidatePayload проверяет payload для типа операции.
// Create, Update и Reference требуют JSON; у Delete payload необязателен.
func ValidatePayload(opType models.OperationType, payload json.RawMessage) error {
	if len(payload) == 0 {
		if opType == models.OperationDelete {
			return nil
		}
		return fmt.Errorf("%w: empty payload for %s", ErrInvalidPayload, opType)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: malformed JSON", ErrInvalidPayload)
	}
	return nil
}
