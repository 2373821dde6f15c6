package boltdb

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/models"
)

// GetEntity retrieves an entity (tombstones included)
func (t *boltTx) GetEntity(entityType, entityID string) (*models.Entity, error) {
	entities, err := t.bucket(bucketEntities)
	if err != nil {
		return nil, err
	}

	data := entities.Get(entityKey(entityType, entityID))
	if data == nil {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrEntityNotFound, entityType, entityID)
	}

	entity := &models.Entity{}
	if err := json.Unmarshal(data, entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return entity, nil
}

// PutEntity stores or replaces an entity
func (t *boltTx) PutEntity(entity *models.Entity) error {
	entities, err := t.bucket(bucketEntities)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	if err := entities.Put(entityKey(entity.Type, entity.ID), data); err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

// DeleteEntity removes an entity record entirely
func (t *boltTx) DeleteEntity(entityType, entityID string) error {
	entities, err := t.bucket(bucketEntities)
	if err != nil {
		return err
	}
	if err := entities.Delete(entityKey(entityType, entityID)); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

// ListEntities returns entities of a type, or all entities when entityType is empty
func (t *boltTx) ListEntities(entityType string) ([]*models.Entity, error) {
	entities, err := t.bucket(bucketEntities)
	if err != nil {
		return nil, err
	}

	var prefix []byte
	if entityType != "" {
		prefix = append([]byte(entityType), sep)
	}

	var result []*models.Entity
	c := entities.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		entity := &models.Entity{}
		if err := json.Unmarshal(v, entity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity %s: %w", k, err)
		}
		result = append(result, entity)
	}
	return result, nil
}

// PutReference stores an additive reference keyed by its operation
func (t *boltTx) PutReference(ref *models.Reference) error {
	refs, err := t.bucket(bucketReferences)
	if err != nil {
		return err
	}

	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to marshal reference: %w", err)
	}

	key := append(entityPrefix(ref.EntityType, ref.EntityID), ref.OperationID...)
	if err := refs.Put(key, data); err != nil {
		return fmt.Errorf("failed to save reference: %w", err)
	}
	return nil
}

// ListReferences returns references attached to the entity
func (t *boltTx) ListReferences(entityType, entityID string) ([]*models.Reference, error) {
	refs, err := t.bucket(bucketReferences)
	if err != nil {
		return nil, err
	}

	prefix := entityPrefix(entityType, entityID)
	var result []*models.Reference

	c := refs.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		ref := &models.Reference{}
		if err := json.Unmarshal(v, ref); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reference: %w", err)
		}
		result = append(result, ref)
	}
	return result, nil
}

// GetStatus returns the tracked status of an entity
func (t *boltTx) GetStatus(entityType, entityID string) (models.EntityStatus, error) {
	statuses, err := t.bucket(bucketStatus)
	if err != nil {
		return "", err
	}

	data := statuses.Get(entityKey(entityType, entityID))
	if data == nil {
		return "", fmt.Errorf("%w: %s/%s", storage.ErrStatusNotFound, entityType, entityID)
	}
	return models.EntityStatus(data), nil
}

// SetStatus stores the status of an entity
func (t *boltTx) SetStatus(entityType, entityID string, status models.EntityStatus) error {
	statuses, err := t.bucket(bucketStatus)
	if err != nil {
		return err
	}
	if err := statuses.Put(entityKey(entityType, entityID), []byte(status)); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// DeleteStatus stops tracking an entity
func (t *boltTx) DeleteStatus(entityType, entityID string) error {
	statuses, err := t.bucket(bucketStatus)
	if err != nil {
		return err
	}
	if err := statuses.Delete(entityKey(entityType, entityID)); err != nil {
		return fmt.Errorf("failed to delete status: %w", err)
	}
	return nil
}

// ListStatuses returns entity_type -> entity_id -> status
func (t *boltTx) ListStatuses() (map[string]map[string]models.EntityStatus, error) {
	statuses, err := t.bucket(bucketStatus)
	if err != nil {
		return nil, err
	}

	result := make(map[string]map[string]models.EntityStatus)
	err = statuses.ForEach(func(k, v []byte) error {
		entityType, entityID := splitEntityKey(k)
		byID, ok := result[entityType]
		if !ok {
			byID = make(map[string]models.EntityStatus)
			result[entityType] = byID
		}
		byID[entityID] = models.EntityStatus(v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	return result, nil
}
