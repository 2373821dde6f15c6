package conflict

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/coursesync/internal/models"
)

// Classify maps an unordered pair of concurrent operation types to a conflict type.
// Reference operations are additive and never conflict.
func Classify(a, b models.OperationType) (models.ConflictType, error) {
	if !classifiable(a) || !classifiable(b) {
		return "", fmt.Errorf("%w: %s/%s", ErrUnclassifiable, a, b)
	}

	// нормализуем порядок: create < update < delete
	if rank(a) > rank(b) {
		a, b = b, a
	}

	switch {
	case a == models.OperationCreate && b == models.OperationCreate:
		return models.ConflictCreateCreate, nil
	case a == models.OperationCreate && b == models.OperationUpdate:
		return models.ConflictCreateUpdate, nil
	case a == models.OperationCreate && b == models.OperationDelete:
		return models.ConflictCreateDelete, nil
	case a == models.OperationUpdate && b == models.OperationUpdate:
		return models.ConflictUpdateUpdate, nil
	case a == models.OperationUpdate && b == models.OperationDelete:
		return models.ConflictUpdateDelete, nil
	default:
		return models.ConflictDeleteDelete, nil
	}
}

func classifiable(t models.OperationType) bool {
	return t == models.OperationCreate || t == models.OperationUpdate || t == models.OperationDelete
}

func rank(t models.OperationType) int {
	switch t {
	case models.OperationCreate:
		return 0
	case models.OperationUpdate:
		return 1
	default:
		return 2
	}
}

// Less reports whether a wins the deterministic tie-break over b:
// lower device_id wins, then lower operation id.
func Less(a, b *models.SyncOperation) bool {
	return lessKey(a.DeviceID, a.ID, b.DeviceID, b.ID)
}

func lessKey(aDevice, aID, bDevice, bID string) bool {
	if aDevice != bDevice {
		return aDevice < bDevice
	}
	return aID < bID
}

// DuplicateID derives the id under which the losing side of a concurrent
// creation is kept. Every replica computes the same id for the same loser.
func DuplicateID(entityID, loserOperationID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(entityID+"#"+loserOperationID)).String()
}
