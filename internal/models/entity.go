package models

import (
	"encoding/json"
	"time"
)

// Entity локальное материализованное состояние сущности.
// Deleted=true означает tombstone: запись остается, чтобы поздние
// конкурентные изменения могли ее восстановить.
type Entity struct {
	UpdatedAt       time.Time       `json:"updated_at"`
	Type            string          `json:"entity_type"`
	ID              string          `json:"entity_id"`
	LastOperationID string          `json:"last_operation_id"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Deleted         bool            `json:"deleted"`
}

// Key returns the entity key.
func (e *Entity) Key() EntityKey {
	return EntityKey{Type: e.Type, ID: e.ID}
}

// Reference аддитивная связь, полученная Reference-операцией.
// Ссылки не участвуют в обнаружении конфликтов.
type Reference struct {
	CreatedAt   time.Time       `json:"created_at"`
	OperationID string          `json:"operation_id"`
	DeviceID    string          `json:"device_id"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}
