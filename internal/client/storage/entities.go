package storage

import "github.com/iudanet/coursesync/internal/models"

// EntityTx defines materialized entity state
type EntityTx interface {
	// GetEntity retrieves an entity (tombstones included)
	// Returns ErrEntityNotFound if entity doesn't exist
	GetEntity(entityType, entityID string) (*models.Entity, error)

	// PutEntity stores or replaces an entity
	PutEntity(entity *models.Entity) error

	// DeleteEntity removes an entity record entirely (no tombstone)
	DeleteEntity(entityType, entityID string) error

	// ListEntities returns entities of a type, or all entities when entityType is empty
	ListEntities(entityType string) ([]*models.Entity, error)

	// PutReference stores an additive reference
	PutReference(ref *models.Reference) error

	// ListReferences returns references attached to the entity
	ListReferences(entityType, entityID string) ([]*models.Reference, error)
}

// StatusTx defines per-entity sync status
type StatusTx interface {
	// GetStatus returns ErrStatusNotFound for untracked entities
	GetStatus(entityType, entityID string) (models.EntityStatus, error)

	SetStatus(entityType, entityID string, status models.EntityStatus) error

	DeleteStatus(entityType, entityID string) error

	// ListStatuses returns entity_type -> entity_id -> status
	ListStatuses() (map[string]map[string]models.EntityStatus, error)
}
