// Package engine drives one synchronization cycle: drain the local queue,
// exchange the batch with the remote endpoint, acknowledge and apply the
// inbound operations through the conflict resolver.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/iudanet/coursesync/internal/client/oplog"
	"github.com/iudanet/coursesync/internal/client/status"
	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/conflict"
	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/vclock"
	"github.com/iudanet/coursesync/pkg/api"
)

// Phase состояние конечного автомата цикла синхронизации
type Phase int32

// Phase константы
const (
	PhaseIdle Phase = iota
	PhaseDraining
	PhaseSending
	PhaseAwaitingAck
	PhaseApplying
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDraining:
		return "draining"
	case PhaseSending:
		return "sending"
	case PhaseAwaitingAck:
		return "awaiting_ack"
	case PhaseApplying:
		return "applying"
	default:
		return "unknown"
	}
}

// Default engine settings
const (
	DefaultBatchSize      = 100
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRounds      = 10
)

// Config параметры движка
type Config struct {
	BatchSize      int           // максимум операций в одном пакете
	RequestTimeout time.Duration // таймаут одного обмена с сервером
	MaxRounds      int           // максимум обменов за цикл, пока у сервера или очереди есть данные
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	return c
}

// CycleResult contains sync cycle results
type CycleResult struct {
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Cursor       int64     `json:"cursor"`       // позиция потока сервера после цикла
	Rounds       int       `json:"rounds"`       // количество обменов с сервером
	Pushed       int       `json:"pushed"`       // отправлено локальных операций
	Acknowledged int       `json:"acknowledged"` // подтверждено сервером
	Rejected     int       `json:"rejected"`     // отклонено сервером и отправлено в карантин
	Pulled       int       `json:"pulled"`       // получено входящих операций
	Applied      int       `json:"applied"`      // обработано входящих операций
	Replayed     int       `json:"replayed"`     // повторно полученные, уже примененные операции
	Skipped      int       `json:"skipped"`      // пропущены: неизвестный тип сущности или битый payload
	Conflicts    int       `json:"conflicts"`    // разрешенных конфликтов
	Duplicates   int       `json:"duplicates"`   // сохраненных дубликатов при конкурентном создании
	Quarantined  int       `json:"quarantined"`  // входящих операций в карантине
}

// Engine единственный исполнитель циклов синхронизации.
// Параллельные вызовы RunCycle не допускаются: сериализацию обеспечивает sync.Service.
type Engine struct {
	oplog     *oplog.Log
	store     storage.Store
	resolver  *conflict.Resolver
	transport Transport
	tracker   *status.Tracker
	logger    *slog.Logger
	now       func() time.Time
	cfg       Config
	phase     atomic.Int32
}

// New creates a sync engine
func New(log *oplog.Log, store storage.Store, resolver *conflict.Resolver, transport Transport, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		oplog:     log,
		store:     store,
		resolver:  resolver,
		transport: transport,
		tracker:   status.NewTracker(store),
		logger:    logger,
		now:       time.Now,
		cfg:       cfg.withDefaults(),
	}
}

// Phase returns the current cycle phase.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

func (e *Engine) setPhase(p Phase) {
	e.phase.Store(int32(p))
}

// Append records a local change through the operation log.
func (e *Engine) Append(ctx context.Context, m oplog.Mutation) (*models.SyncOperation, error) {
	return e.oplog.Append(ctx, m)
}

// State returns a snapshot of the sync state.
func (e *Engine) State(ctx context.Context) (*models.SyncState, error) {
	return e.tracker.Snapshot(ctx)
}

// Pending returns the number of queued local operations.
func (e *Engine) Pending(ctx context.Context) (int, error) {
	return e.oplog.Pending(ctx)
}

// Compact removes synced operations older than before.
func (e *Engine) Compact(ctx context.Context, before time.Time) (int, error) {
	return e.oplog.Compact(ctx, before)
}

// RunCycle выполняет один цикл синхронизации:
// Idle -> Draining -> Sending -> AwaitingAck -> Applying -> Idle.
// Обмен повторяется, пока у сервера есть данные (has_more) или очередь
// отдала полный пакет и сервер его разобрал, но не более MaxRounds раз.
//
// Ошибка транспорта возвращается обернутой в ErrTransport, операции
// остаются в очереди. Отмена ctx проверяется между фазами.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	defer e.setPhase(PhaseIdle)

	result := &CycleResult{StartedAt: e.now().UTC()}
	defer func() {
		result.FinishedAt = e.now().UTC()
	}()

	cursor, err := e.loadCursor(ctx)
	if err != nil {
		return result, err
	}
	result.Cursor = cursor

	for round := 0; round < e.cfg.MaxRounds; round++ {
		more, err := e.runRound(ctx, result)
		if err != nil {
			return result, err
		}
		if !more {
			break
		}
	}

	e.logger.Info("Sync cycle completed",
		"rounds", result.Rounds,
		"pushed", result.Pushed,
		"acknowledged", result.Acknowledged,
		"rejected", result.Rejected,
		"pulled", result.Pulled,
		"applied", result.Applied,
		"conflicts", result.Conflicts,
		"skipped", result.Skipped,
		"quarantined", result.Quarantined,
		"cursor", result.Cursor)

	return result, nil
}

func (e *Engine) runRound(ctx context.Context, result *CycleResult) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	e.setPhase(PhaseDraining)
	ops, err := e.oplog.Drain(ctx, e.cfg.BatchSize)
	if err != nil {
		return false, err
	}

	req := &api.SyncRequest{
		Batch: api.SyncBatch{
			Timestamp:   e.now().UTC(),
			VectorClock: e.oplog.Clock().Snapshot(),
			DeviceID:    e.oplog.DeviceID(),
			UserID:      e.oplog.UserID(),
			Operations:  toAPIList(ops),
		},
		Cursor: result.Cursor,
		Limit:  e.cfg.BatchSize,
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	e.setPhase(PhaseSending)
	resp, err := e.exchange(ctx, req)
	if err != nil {
		e.logger.Warn("Sync exchange failed, operations stay queued",
			"queued", len(ops),
			"error", err)
		return false, err
	}
	result.Rounds++
	result.Pushed += len(ops)

	e.setPhase(PhaseAwaitingAck)
	acknowledged, rejected := result.Acknowledged, result.Rejected
	if err := e.acknowledge(ctx, ops, resp, result); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	e.setPhase(PhaseApplying)
	seen, err := e.applyInbound(ctx, resp.Inbound, result)
	if err != nil {
		return false, err
	}

	if err := e.commitRound(ctx, resp, seen); err != nil {
		return false, err
	}
	result.Cursor = resp.Cursor

	// полная очередь повторяет обмен, только если сервер разобрал пакет;
	// иначе следующий раунд отправил бы те же операции
	progressed := result.Acknowledged > acknowledged || result.Rejected > rejected
	queueFull := len(ops) == e.cfg.BatchSize && progressed
	return resp.HasMore || queueFull, nil
}

func (e *Engine) exchange(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	resp, err := e.transport.Exchange(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %w: empty response", ErrTransport, ErrInvalidResponse)
	}
	if resp.Cursor < req.Cursor {
		return nil, fmt.Errorf("%w: %w: cursor moved backwards (%d < %d)",
			ErrTransport, ErrInvalidResponse, resp.Cursor, req.Cursor)
	}
	return resp, nil
}

// acknowledge отмечает принятые операции и отправляет отклоненные в карантин.
// Операции пакета без ответа сервера остаются в очереди.
func (e *Engine) acknowledge(ctx context.Context, ops []*models.SyncOperation, resp *api.SyncResponse, result *CycleResult) error {
	sent := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		sent[op.ID] = struct{}{}
	}

	accepted := make([]string, 0, len(resp.Accepted))
	for _, id := range resp.Accepted {
		if _, ok := sent[id]; ok {
			accepted = append(accepted, id)
		}
	}

	marked, err := e.oplog.MarkSynced(ctx, accepted)
	if err != nil {
		return err
	}
	result.Acknowledged += marked

	if len(resp.Rejected) == 0 {
		return nil
	}

	at := e.now().UTC()
	rejected := 0
	err = e.store.Update(ctx, func(tx storage.Tx) error {
		rejected = 0
		touched := make(map[models.EntityKey]bool) // true - среди отклоненных есть create
		var order []models.EntityKey

		for _, r := range resp.Rejected {
			if _, ok := sent[r.ID]; !ok {
				continue
			}
			op, err := tx.GetOperation(r.ID)
			if err != nil {
				return err
			}
			err = tx.QuarantineOperation(&models.QuarantinedOperation{
				QuarantinedAt: at,
				Operation:     op,
				Reason:        r.Reason,
				Source:        models.QuarantineLocal,
			})
			if err != nil {
				return err
			}

			key := op.Key()
			if _, ok := touched[key]; !ok {
				order = append(order, key)
			}
			touched[key] = touched[key] || op.OperationType == models.OperationCreate
			rejected++
		}

		for _, key := range order {
			if err := e.restoreEntity(tx, key, touched[key]); err != nil {
				return err
			}
			if _, err := status.Settle(tx, key.Type, key.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to quarantine rejected operations: %w", err)
	}

	for _, r := range resp.Rejected {
		e.logger.Warn("Operation rejected by server", "operation_id", r.ID, "reason", r.Reason)
	}
	result.Rejected += rejected
	return nil
}

// restoreEntity пересобирает сущность по журналу без отклоненных операций,
// чтобы их эффект не оставался в локальном состоянии.
func (e *Engine) restoreEntity(tx storage.Tx, key models.EntityKey, droppedCreate bool) error {
	history, err := tx.EntityOperations(key.Type, key.ID)
	if err != nil {
		return err
	}

	head, ok := e.resolver.Head(history)
	if ok {
		return writeHead(tx, head)
	}
	if droppedCreate {
		// сущность существовала только благодаря отклоненному create
		return tx.DeleteEntity(key.Type, key.ID)
	}
	// история сжата Compact: восстановить прежнее состояние не из чего
	e.logger.Warn("Cannot restore entity after rejection, history compacted", "entity", key.String())
	return nil
}

// commitRound объединяет часы с часами сервера и примененных операций
// и сохраняет курсор одной транзакцией. Часы сервера покрывают и пропущенные
// или отправленные в карантин операции: курсор уже прошел их, повторно они
// не придут. Ошибка хранилища посреди пакета оставляет и часы, и курсор
// прежними, и пакет приходит снова.
func (e *Engine) commitRound(ctx context.Context, resp *api.SyncResponse, seen vclock.VectorClock) error {
	merged := e.oplog.Clock().Merge(seen.Merge(vclock.VectorClock(resp.VectorClock)))

	err := e.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.MergeClock(merged); err != nil {
			return err
		}
		if err := tx.SaveCursor(resp.Cursor); err != nil {
			return err
		}
		return tx.SaveLastSyncTimestamp(e.now().UTC())
	})
	if err != nil {
		return fmt.Errorf("failed to commit sync round: %w", err)
	}
	return nil
}

func (e *Engine) loadCursor(ctx context.Context) (int64, error) {
	var cursor int64
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		cursor, err = tx.GetCursor()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	}
	return cursor, nil
}
