package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/coursesync/internal/client/oplog"
	"github.com/iudanet/coursesync/internal/client/status"
	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/conflict"
	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/vclock"
	"github.com/iudanet/coursesync/pkg/api"
)

type applyStatus int

const (
	statusApplied applyStatus = iota
	statusReplayed
	statusSkipped
	statusQuarantined
)

// applyReport итог применения одной входящей операции
type applyReport struct {
	status    applyStatus
	conflict  bool
	duplicate bool
}

// applyInbound применяет входящие операции по одной. Ошибка одной операции
// не влияет на остальные; прерывает фазу только ошибка хранилища или отмена ctx.
// Возвращает объединение часов обработанных операций.
func (e *Engine) applyInbound(ctx context.Context, inbound []api.Operation, result *CycleResult) (vclock.VectorClock, error) {
	seen := vclock.VectorClock{}
	result.Pulled += len(inbound)

	for _, wire := range inbound {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		op := fromAPI(wire)
		report, err := e.applyOne(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("failed to apply inbound operation %s: %w", op.ID, err)
		}

		switch report.status {
		case statusApplied:
			result.Applied++
			seen = seen.Merge(op.VectorClock)
		case statusReplayed:
			result.Replayed++
			seen = seen.Merge(op.VectorClock)
		case statusSkipped:
			result.Skipped++
		case statusQuarantined:
			result.Quarantined++
		}
		if report.conflict {
			result.Conflicts++
		}
		if report.duplicate {
			result.Duplicates++
		}
	}

	return seen, nil
}

func (e *Engine) applyOne(ctx context.Context, op *models.SyncOperation) (applyReport, error) {
	if err := op.Validate(); err != nil {
		return e.quarantine(ctx, op, err)
	}

	if !e.oplog.KnowsEntityType(op.EntityType) {
		e.logger.Warn("Skipping inbound operation",
			"operation_id", op.ID,
			"error", fmt.Errorf("%w: %q", oplog.ErrUnknownEntityType, op.EntityType))
		return applyReport{status: statusSkipped}, nil
	}
	if err := oplog.ValidatePayload(op.OperationType, op.Payload); err != nil {
		e.logger.Warn("Skipping inbound operation",
			"operation_id", op.ID,
			"entity", op.Key().String(),
			"error", err)
		return applyReport{status: statusSkipped}, nil
	}

	var report applyReport
	var unclassifiable error

	err := e.store.Update(ctx, func(tx storage.Tx) error {
		report = applyReport{}
		unclassifiable = nil

		applied, err := tx.IsApplied(op.ID)
		if err != nil {
			return err
		}
		if applied {
			report.status = statusReplayed
			return nil
		}

		if op.OperationType == models.OperationReference {
			return e.applyReference(tx, op)
		}

		local, err := tx.EntityOperations(op.EntityType, op.EntityID)
		if err != nil {
			return err
		}

		outcome, err := e.resolver.Reconcile(local, op)
		if errors.Is(err, conflict.ErrUnclassifiable) {
			// карантин пишется отдельной транзакцией
			unclassifiable = err
			return nil
		}
		if err != nil {
			return err
		}

		report.conflict = outcome.Conflict != nil
		report.duplicate = outcome.Duplicate != nil
		return e.applyOutcome(tx, op, outcome)
	})
	if err != nil {
		return applyReport{}, err
	}

	if unclassifiable != nil {
		return e.quarantine(ctx, op, unclassifiable)
	}
	return report, nil
}

func (e *Engine) applyReference(tx storage.Tx, op *models.SyncOperation) error {
	if err := oplog.ApplyEffect(tx, op); err != nil {
		return err
	}
	if err := e.recordRemote(tx, op); err != nil {
		return err
	}
	_, err := status.Settle(tx, op.EntityType, op.EntityID)
	return err
}

// applyOutcome записывает исход сверки: дубликат, эффект, перекрытые локальные
// операции, проигравшие payload, аудит конфликта и маркер применения.
func (e *Engine) applyOutcome(tx storage.Tx, remote *models.SyncOperation, out *conflict.Outcome) error {
	at := e.now().UTC()

	if out.Duplicate != nil {
		if err := e.writeDuplicate(tx, remote, out.Duplicate); err != nil {
			return err
		}
	}

	switch out.Effect {
	case conflict.EffectApplyRemote:
		if err := oplog.ApplyEffect(tx, remote); err != nil {
			return err
		}
	case conflict.EffectApplyMerged:
		if err := writeHead(tx, &conflict.Head{Operation: out.Winner, Payload: out.Payload, Merged: true}); err != nil {
			return err
		}
	case conflict.EffectRestoreLocal:
		if err := oplog.ApplyEffect(tx, out.Winner); err != nil {
			return err
		}
	case conflict.EffectKeepLocal:
	}

	for _, id := range out.Superseded {
		if err := tx.MarkSynced(id, at); err != nil {
			return fmt.Errorf("failed to discard superseded operation: %w", err)
		}
	}

	for _, loser := range out.Losers {
		err := tx.SaveSideRecord(&models.SideRecord{
			CreatedAt:   at,
			OperationID: loser.Operation.ID,
			DeviceID:    loser.Operation.DeviceID,
			EntityType:  loser.Operation.EntityType,
			EntityID:    loser.Operation.EntityID,
			Reason:      loser.Reason,
			Payload:     loser.Operation.Payload,
		})
		if err != nil {
			return err
		}
	}

	if c := out.Conflict; c != nil {
		rec := &models.ConflictRecord{
			ResolvedAt:        at,
			ID:                uuid.New().String(),
			EntityType:        remote.EntityType,
			EntityID:          remote.EntityID,
			LocalOperationID:  c.Local.ID,
			RemoteOperationID: remote.ID,
			LocalDigest:       models.PayloadDigest(c.Local.Payload),
			RemoteDigest:      models.PayloadDigest(remote.Payload),
			Reason:            c.Reason,
			Type:              c.Type,
			Resolution:        c.Resolution,
		}
		if out.Duplicate != nil {
			rec.DuplicateEntityID = out.Duplicate.EntityID
		}
		if err := tx.SaveConflict(rec); err != nil {
			return err
		}

		attrs := []any{
			"entity", remote.Key().String(),
			"type", c.Type,
			"resolution", c.Resolution,
			"local_operation_id", c.Local.ID,
			"remote_operation_id", remote.ID,
		}
		if c.HookErr != nil {
			e.logger.Warn("Merge hook failed, falling back to tie-break", append(attrs, "error", c.HookErr)...)
		} else if c.Type == models.ConflictCreateDelete || c.Type == models.ConflictUpdateDelete {
			e.logger.Warn("Concurrent delete resolved", append(attrs, "reason", c.Reason)...)
		} else {
			e.logger.Info("Conflict resolved", attrs...)
		}
	}

	if err := e.recordRemote(tx, remote); err != nil {
		return err
	}

	if _, err := status.Settle(tx, remote.EntityType, remote.EntityID); err != nil {
		return err
	}
	if out.Duplicate != nil {
		if _, err := status.Settle(tx, remote.EntityType, out.Duplicate.EntityID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) writeDuplicate(tx storage.Tx, remote *models.SyncOperation, dup *conflict.Duplicate) error {
	entity := &models.Entity{
		UpdatedAt:       e.now().UTC(),
		Type:            remote.EntityType,
		ID:              dup.EntityID,
		LastOperationID: dup.OperationID,
		Payload:         dup.Payload,
		Deleted:         dup.Deleted,
	}
	if dup.Deleted {
		// tombstone дубликата хранит последний известный payload
		prev, err := tx.GetEntity(remote.EntityType, dup.EntityID)
		if err != nil && !errors.Is(err, storage.ErrEntityNotFound) {
			return err
		}
		if err == nil {
			entity.Payload = prev.Payload
		}
	}
	return tx.PutEntity(entity)
}

// writeHead материализует голову истории сущности
func writeHead(tx storage.Tx, head *conflict.Head) error {
	op := head.Operation
	if head.Merged {
		op = op.Clone()
		op.Payload = head.Payload
	}
	return oplog.ApplyEffect(tx, op)
}

// recordRemote сохраняет удаленную операцию в журнал как подтвержденную,
// чтобы она участвовала в сверке следующих операций, и ставит маркер применения.
func (e *Engine) recordRemote(tx storage.Tx, op *models.SyncOperation) error {
	at := e.now().UTC()

	logged := op.Clone()
	logged.Synced = true
	logged.SyncedAt = &at

	err := tx.SaveOperation(logged)
	if err != nil && !errors.Is(err, storage.ErrOperationExists) {
		return err
	}
	return tx.MarkApplied(op.ID, at)
}

func (e *Engine) quarantine(ctx context.Context, op *models.SyncOperation, cause error) (applyReport, error) {
	if op.ID == "" {
		// без id операцию нельзя ни сохранить, ни отличить от повтора
		e.logger.Warn("Skipping inbound operation without id", "error", cause)
		return applyReport{status: statusSkipped}, nil
	}

	e.logger.Warn("Inbound operation quarantined",
		"operation_id", op.ID,
		"entity", op.Key().String(),
		"error", cause)

	at := e.now().UTC()
	err := e.store.Update(ctx, func(tx storage.Tx) error {
		err := tx.QuarantineOperation(&models.QuarantinedOperation{
			QuarantinedAt: at,
			Operation:     op,
			Reason:        cause.Error(),
			Source:        models.QuarantineRemote,
		})
		if err != nil {
			return err
		}
		return tx.MarkApplied(op.ID, at)
	})
	if err != nil {
		return applyReport{}, fmt.Errorf("failed to quarantine operation: %w", err)
	}
	return applyReport{status: statusQuarantined}, nil
}
