package handlers

import (
	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/vclock"
	"github.com/iudanet/coursesync/pkg/api"
)

func fromAPI(w api.Operation) *models.SyncOperation {
	return &models.SyncOperation{
		Timestamp:     w.Timestamp,
		VectorClock:   vclock.VectorClock(w.VectorClock).Clone(),
		ID:            w.ID,
		DeviceID:      w.DeviceID,
		UserID:        w.UserID,
		OperationType: models.OperationType(w.OperationType),
		EntityType:    w.EntityType,
		EntityID:      w.EntityID,
		Payload:       w.Payload,
	}
}

func toAPI(op *models.SyncOperation) api.Operation {
	return api.Operation{
		Timestamp:     op.Timestamp,
		VectorClock:   op.VectorClock,
		ID:            op.ID,
		DeviceID:      op.DeviceID,
		UserID:        op.UserID,
		OperationType: string(op.OperationType),
		EntityType:    op.EntityType,
		EntityID:      op.EntityID,
		Payload:       op.Payload,
	}
}
