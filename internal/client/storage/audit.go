package storage

import "github.com/iudanet/coursesync/internal/models"

// AuditTx defines conflict audit, side records and quarantine
type AuditTx interface {
	// SaveConflict appends a conflict audit record
	SaveConflict(rec *models.ConflictRecord) error

	ListConflicts() ([]*models.ConflictRecord, error)

	// SaveSideRecord preserves a losing payload
	SaveSideRecord(rec *models.SideRecord) error

	ListSideRecords() ([]*models.SideRecord, error)

	// QuarantineOperation moves an operation out of the normal flow.
	// A queued local operation is removed from the queue and never re-queued
	QuarantineOperation(q *models.QuarantinedOperation) error

	ListQuarantined() ([]*models.QuarantinedOperation, error)
}
