package models

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ConflictType классификация пары конкурентных операций над одной сущностью.
// Пара неупорядочена: Update/Create и Create/Update дают CreateUpdate.
type ConflictType string

// ConflictType константы
const (
	ConflictCreateCreate ConflictType = "create_create"
	ConflictCreateUpdate ConflictType = "create_update"
	ConflictCreateDelete ConflictType = "create_delete"
	ConflictUpdateUpdate ConflictType = "update_update"
	ConflictUpdateDelete ConflictType = "update_delete"
	ConflictDeleteDelete ConflictType = "delete_delete"
)

// ConflictResolution способ разрешения конфликта.
// First - локальная операция, Second - удаленная.
type ConflictResolution string

// ConflictResolution константы
const (
	ResolutionKeepFirst  ConflictResolution = "keep_first"
	ResolutionKeepSecond ConflictResolution = "keep_second"
	ResolutionMerge      ConflictResolution = "merge"
	ResolutionKeepBoth   ConflictResolution = "keep_both"
)

// ConflictRecord запись аудита о разрешенном конфликте
type ConflictRecord struct {
	ResolvedAt        time.Time          `json:"resolved_at" yaml:"resolved_at"`
	ID                string             `json:"id" yaml:"id"`
	EntityType        string             `json:"entity_type" yaml:"entity_type"`
	EntityID          string             `json:"entity_id" yaml:"entity_id"`
	LocalOperationID  string             `json:"local_operation_id" yaml:"local_operation_id"`
	RemoteOperationID string             `json:"remote_operation_id" yaml:"remote_operation_id"`
	LocalDigest       string             `json:"local_digest,omitempty" yaml:"local_digest,omitempty"`
	RemoteDigest      string             `json:"remote_digest,omitempty" yaml:"remote_digest,omitempty"`
	DuplicateEntityID string             `json:"duplicate_entity_id,omitempty" yaml:"duplicate_entity_id,omitempty"`
	Reason            string             `json:"reason,omitempty" yaml:"reason,omitempty"`
	Type              ConflictType       `json:"type" yaml:"type"`
	Resolution        ConflictResolution `json:"resolution" yaml:"resolution"`
}

// SideRecord сохраняет проигравший payload, чтобы его можно было восстановить вручную
type SideRecord struct {
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
	ID          string          `json:"id" yaml:"id"`
	OperationID string          `json:"operation_id" yaml:"operation_id"`
	DeviceID    string          `json:"device_id" yaml:"device_id"`
	EntityType  string          `json:"entity_type" yaml:"entity_type"`
	EntityID    string          `json:"entity_id" yaml:"entity_id"`
	Reason      string          `json:"reason" yaml:"reason"`
	Payload     json.RawMessage `json:"payload,omitempty" yaml:"-"`
}

// QuarantineSource откуда пришла операция, отправленная в карантин
type QuarantineSource string

// QuarantineSource константы
const (
	QuarantineLocal  QuarantineSource = "local"  // отклонена сервером
	QuarantineRemote QuarantineSource = "remote" // не может быть применена локально
)

// QuarantinedOperation операция, выведенная из нормального потока синхронизации
type QuarantinedOperation struct {
	QuarantinedAt time.Time        `json:"quarantined_at" yaml:"quarantined_at"`
	Operation     *SyncOperation   `json:"operation" yaml:"operation"`
	Reason        string           `json:"reason" yaml:"reason"`
	Source        QuarantineSource `json:"source" yaml:"source"`
}

// PayloadDigest returns a short BLAKE2b-256 hex digest of a payload.
// Empty payloads produce an empty digest.
func PayloadDigest(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
