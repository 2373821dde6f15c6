package models

import "time"

// EntityStatus статус синхронизации отдельной сущности
type EntityStatus string

// EntityStatus константы
const (
	StatusSynced        EntityStatus = "synced"
	StatusPendingCreate EntityStatus = "pending_create"
	StatusPendingUpdate EntityStatus = "pending_update"
	StatusPendingDelete EntityStatus = "pending_delete"
	StatusRemoteOnly    EntityStatus = "remote_only"
)

// Pending reports whether the entity has local changes not yet acknowledged.
func (s EntityStatus) Pending() bool {
	switch s {
	case StatusPendingCreate, StatusPendingUpdate, StatusPendingDelete:
		return true
	default:
		return false
	}
}

// SyncState снимок состояния синхронизации.
// Владелец - движок; читатели получают копии.
type SyncState struct {
	LastSyncTimestamp time.Time                          `json:"last_sync_timestamp"`
	Entities          map[string]map[string]EntityStatus `json:"entities"` // entity_type -> entity_id -> status
}

// NewSyncState создает пустое состояние
func NewSyncState() *SyncState {
	return &SyncState{
		Entities: make(map[string]map[string]EntityStatus),
	}
}

// Set записывает статус сущности
func (s *SyncState) Set(entityType, entityID string, status EntityStatus) {
	byID, ok := s.Entities[entityType]
	if !ok {
		byID = make(map[string]EntityStatus)
		s.Entities[entityType] = byID
	}
	byID[entityID] = status
}

// Get returns the status of an entity and whether it is tracked.
func (s *SyncState) Get(entityType, entityID string) (EntityStatus, bool) {
	status, ok := s.Entities[entityType][entityID]
	return status, ok
}

// Counts returns the number of tracked entities per status.
func (s *SyncState) Counts() map[EntityStatus]int {
	counts := make(map[EntityStatus]int)
	for _, byID := range s.Entities {
		for _, status := range byID {
			counts[status]++
		}
	}
	return counts
}

// Clone создает глубокую копию состояния
func (s *SyncState) Clone() *SyncState {
	clone := &SyncState{
		LastSyncTimestamp: s.LastSyncTimestamp,
		Entities:          make(map[string]map[string]EntityStatus, len(s.Entities)),
	}
	for entityType, byID := range s.Entities {
		copied := make(map[string]EntityStatus, len(byID))
		for id, status := range byID {
			copied[id] = status
		}
		clone.Entities[entityType] = copied
	}
	return clone
}
