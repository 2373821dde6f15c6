package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/coursesync/internal/vclock"
)

// OperationType тип изменения сущности
type OperationType string

// OperationType константы
const (
	OperationCreate    OperationType = "create"
	OperationUpdate    OperationType = "update"
	OperationDelete    OperationType = "delete"
	OperationReference OperationType = "reference"
)

// Valid reports whether t is one of the known operation types.
func (t OperationType) Valid() bool {
	switch t {
	case OperationCreate, OperationUpdate, OperationDelete, OperationReference:
		return true
	default:
		return false
	}
}

// ParseOperationType разбирает строковое представление типа операции.
func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperationType, s)
	}
	return t, nil
}

// SyncOperation представляет одну запись журнала операций.
// Все поля кроме Synced и SyncedAt неизменяемы после создания:
// исправления оформляются новыми операциями.
type SyncOperation struct {
	Timestamp     time.Time          `json:"timestamp"`           // Timestamp wall-clock время создания (только для отображения и tie-break)
	SyncedAt      *time.Time         `json:"synced_at,omitempty"` // SyncedAt время подтверждения сервером
	VectorClock   vclock.VectorClock `json:"vector_clock"`        // VectorClock снимок часов устройства на момент создания
	ID            string             `json:"id"`                  // ID уникальный идентификатор операции (UUID)
	DeviceID      string             `json:"device_id"`           // DeviceID устройство-источник
	UserID        string             `json:"user_id"`             // UserID владелец изменения
	OperationType OperationType      `json:"operation_type"`      // OperationType create/update/delete/reference
	EntityType    string             `json:"entity_type"`         // EntityType тип сущности, например "course"
	EntityID      string             `json:"entity_id"`           // EntityID идентификатор сущности
	Payload       json.RawMessage    `json:"payload,omitempty"`   // Payload непрозрачное JSON представление изменения
	Synced        bool               `json:"synced"`              // Synced операция подтверждена сервером
}

// Clone создает глубокую копию операции
func (op *SyncOperation) Clone() *SyncOperation {
	clone := *op

	if op.Payload != nil {
		clone.Payload = make(json.RawMessage, len(op.Payload))
		copy(clone.Payload, op.Payload)
	}
	if op.VectorClock != nil {
		clone.VectorClock = op.VectorClock.Clone()
	}
	if op.SyncedAt != nil {
		syncedAt := *op.SyncedAt
		clone.SyncedAt = &syncedAt
	}

	return &clone
}

// Key returns the entity key the operation targets.
func (op *SyncOperation) Key() EntityKey {
	return EntityKey{Type: op.EntityType, ID: op.EntityID}
}

// Validate проверяет структурную целостность операции.
// Ошибки, обернутые ErrInvalidOperation или ErrUnknownOperationType,
// означают, что операцию нельзя применить ни при каких условиях.
func (op *SyncOperation) Validate() error {
	if op.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidOperation)
	}
	if op.DeviceID == "" {
		return fmt.Errorf("%w: empty device_id", ErrInvalidOperation)
	}
	if !op.OperationType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOperationType, op.OperationType)
	}
	if op.EntityType == "" {
		return fmt.Errorf("%w: empty entity_type", ErrInvalidOperation)
	}
	if op.EntityID == "" {
		return fmt.Errorf("%w: empty entity_id", ErrInvalidOperation)
	}
	// NUL - разделитель составных ключей локального хранилища
	if strings.ContainsRune(op.EntityType, 0) || strings.ContainsRune(op.EntityID, 0) {
		return fmt.Errorf("%w: NUL byte in entity key", ErrInvalidOperation)
	}
	if len(op.VectorClock) == 0 {
		return fmt.Errorf("%w: empty vector_clock", ErrInvalidOperation)
	}
	return nil
}

// SyncBatch группа операций, отправляемая или получаемая за один цикл.
// Не сохраняется в хранилище.
type SyncBatch struct {
	Timestamp   time.Time          `json:"timestamp"`
	VectorClock vclock.VectorClock `json:"vector_clock"`
	DeviceID    string             `json:"device_id"`
	UserID      string             `json:"user_id"`
	Operations  []*SyncOperation   `json:"operations"`
}

// EntityKey идентифицирует сущность парой (entity_type, entity_id)
type EntityKey struct {
	Type string `json:"entity_type"`
	ID   string `json:"entity_id"`
}

// String returns "type/id".
func (k EntityKey) String() string {
	return k.Type + "/" + k.ID
}
