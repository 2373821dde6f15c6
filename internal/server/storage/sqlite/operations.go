package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/server/storage"
	"github.com/iudanet/coursesync/internal/vclock"
)

// SaveOperations идемпотентно сохраняет операции пользователя одной транзакцией.
// Операция с уже известным id не перезаписывается.
func (s *Storage) SaveOperations(ctx context.Context, userID string, ops []*models.SyncOperation) (*storage.SaveResult, error) {
	result := &storage.SaveResult{Rejected: make(map[string]error)}
	if len(ops) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO operations (
			id, user_id, device_id, operation_type, entity_type, entity_id,
			payload, vector_clock, timestamp, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = insert.Close()
	}()

	receivedAt := s.now().UnixNano()
	for _, op := range ops {
		clock, err := json.Marshal(op.VectorClock)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal vector clock of %s: %w", op.ID, err)
		}

		var payload []byte
		if len(op.Payload) > 0 {
			payload = op.Payload
		}

		res, err := insert.ExecContext(ctx,
			op.ID,
			userID,
			op.DeviceID,
			string(op.OperationType),
			op.EntityType,
			op.EntityID,
			payload,
			string(clock),
			op.Timestamp.UnixNano(),
			receivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert operation %s: %w", op.ID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 1 {
			seq, err := res.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("failed to get operation position: %w", err)
			}
			result.Inserted = append(result.Inserted, op.ID)
			result.Cursor = max(result.Cursor, seq)
			continue
		}

		var owner string
		if err := tx.QueryRowContext(ctx, `SELECT user_id FROM operations WHERE id = ?`, op.ID).Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to check existing operation %s: %w", op.ID, err)
		}
		if owner != userID {
			result.Rejected[op.ID] = fmt.Errorf("%w: %s", storage.ErrOperationConflict, op.ID)
			continue
		}
		result.Duplicates = append(result.Duplicates, op.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit operations: %w", err)
	}
	return result, nil
}

// PullOperations возвращает операции других устройств пользователя после cursor.
// Когда все подходящие операции выданы, курсор сдвигается за собственные
// операции устройства, чтобы они не сканировались повторно.
func (s *Storage) PullOperations(ctx context.Context, userID, excludeDevice string, cursor int64, limit int) (*storage.PullResult, error) {
	if cursor < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: cursor=%d limit=%d", storage.ErrInvalidCursor, cursor, limit)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT seq, id, user_id, device_id, operation_type, entity_type, entity_id,
		       payload, vector_clock, timestamp
		FROM operations
		WHERE user_id = ? AND seq > ? AND device_id != ?
		ORDER BY seq
		LIMIT ?
	`, userID, cursor, excludeDevice, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}

	result := &storage.PullResult{Cursor: cursor}
	var seqs []int64
	for rows.Next() {
		seq, op, err := scanOperation(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		seqs = append(seqs, seq)
		result.Operations = append(result.Operations, op)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}
	_ = rows.Close()

	if len(result.Operations) > limit {
		result.Operations = result.Operations[:limit]
		seqs = seqs[:limit]
		result.HasMore = true
	}
	if len(seqs) > 0 {
		result.Cursor = seqs[len(seqs)-1]
	}

	if !result.HasMore {
		latest, err := latestCursor(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		result.Cursor = max(result.Cursor, latest)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pull: %w", err)
	}
	return result, nil
}

// LatestCursor возвращает наибольшую позицию операций пользователя
func (s *Storage) LatestCursor(ctx context.Context, userID string) (int64, error) {
	return latestCursor(ctx, s.db, userID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func latestCursor(ctx context.Context, q queryRower, userID string) (int64, error) {
	var latest int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM operations WHERE user_id = ?`, userID,
	).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest cursor: %w", err)
	}
	return latest, nil
}

func scanOperation(rows *sql.Rows) (int64, *models.SyncOperation, error) {
	var (
		seq       int64
		opType    string
		payload   []byte
		clockJSON string
		timestamp int64
		op        models.SyncOperation
	)
	err := rows.Scan(
		&seq,
		&op.ID,
		&op.UserID,
		&op.DeviceID,
		&opType,
		&op.EntityType,
		&op.EntityID,
		&payload,
		&clockJSON,
		&timestamp,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to scan operation: %w", err)
	}

	var clock vclock.VectorClock
	if err := json.Unmarshal([]byte(clockJSON), &clock); err != nil {
		return 0, nil, fmt.Errorf("failed to unmarshal vector clock of %s: %w", op.ID, err)
	}

	op.OperationType = models.OperationType(opType)
	op.VectorClock = clock
	op.Timestamp = time.Unix(0, timestamp).UTC()
	if len(payload) > 0 {
		op.Payload = json.RawMessage(payload)
	}
	return seq, &op, nil
}
