package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/iudanet/coursesync/internal/client/engine"
	"github.com/iudanet/coursesync/pkg/api"
)

//go:generate moq -out service_mock.go . Cycler Notifier MetadataStorage

// ErrCycleInProgress возвращается SyncNow, если цикл уже выполняется
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// Cycler выполняет циклы синхронизации и обслуживание журнала
type Cycler interface {
	RunCycle(ctx context.Context) (*engine.CycleResult, error)
	Compact(ctx context.Context, before time.Time) (int, error)
}

// Notifier доставляет push-уведомления о новых операциях на сервере
type Notifier interface {
	// Subscribe блокируется до отмены ctx или обрыва соединения
	Subscribe(ctx context.Context, fn func(api.Notification)) error
}

// MetadataStorage сохраняет последнюю ошибку синхронизации для UI
type MetadataStorage interface {
	SaveLastError(ctx context.Context, msg string) error
}

// Причины запуска цикла
const (
	ReasonStartup  = "startup"
	ReasonInterval = "interval"
	ReasonTrigger  = "trigger"
	ReasonManual   = "manual"
)

// Config параметры сервиса синхронизации
type Config struct {
	Interval            time.Duration // период циклов
	MaintenanceInterval time.Duration // период компакции журнала, 0 - отключена
	Retention           time.Duration // сколько хранить подтвержденные операции
	NotifyRetry         time.Duration // пауза перед переподпиской на уведомления
	HistorySize         int           // сколько последних запусков помнить
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.NotifyRetry <= 0 {
		c.NotifyRetry = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 20
	}
	return c
}

// RunRecord запись истории запусков
type RunRecord struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Result     *engine.CycleResult
	Reason     string
	Error      string
}

// Service планирует циклы синхронизации: по таймеру, по запросу и по
// уведомлению сервера. Одновременно выполняется не более одного цикла.
type Service struct {
	cycler   Cycler
	notifier Notifier
	metadata MetadataStorage
	logger   *slog.Logger
	trigger  chan struct{}
	now      func() time.Time
	history  []RunRecord
	cfg      Config
	cycleMu  gosync.Mutex
	mu       gosync.Mutex
}

// NewService creates a new sync service. notifier may be nil.
func NewService(cycler Cycler, notifier Notifier, metadata MetadataStorage, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		cycler:   cycler,
		notifier: notifier,
		metadata: metadata,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		now:      time.Now,
		cfg:      cfg.withDefaults(),
	}
}

// Trigger запрашивает внеочередной цикл. Не блокируется:
// повторные запросы до начала цикла схлопываются в один.
func (s *Service) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// SyncNow выполняет цикл синхронно.
// Возвращает ErrCycleInProgress, если цикл уже идет.
func (s *Service) SyncNow(ctx context.Context) (*engine.CycleResult, error) {
	return s.runCycle(ctx, ReasonManual)
}

// Run запускает планировщик и блокируется до отмены ctx
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Sync service started",
		"interval", s.cfg.Interval,
		"maintenance_interval", s.cfg.MaintenanceInterval,
		"notifications", s.notifier != nil)

	var wg gosync.WaitGroup
	if s.notifier != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.notifyLoop(ctx)
		}()
	}
	defer wg.Wait()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var maintenance <-chan time.Time
	if s.cfg.MaintenanceInterval > 0 {
		mt := time.NewTicker(s.cfg.MaintenanceInterval)
		defer mt.Stop()
		maintenance = mt.C
	}

	s.scheduledCycle(ctx, ReasonStartup)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sync service stopped")
			return nil
		case <-ticker.C:
			s.scheduledCycle(ctx, ReasonInterval)
		case <-s.trigger:
			s.scheduledCycle(ctx, ReasonTrigger)
		case <-maintenance:
			s.Maintain(ctx)
		}
	}
}

// Maintain удаляет из журнала подтвержденные операции старше Retention
func (s *Service) Maintain(ctx context.Context) int {
	before := s.now().Add(-s.cfg.Retention)
	removed, err := s.cycler.Compact(ctx, before)
	if err != nil {
		s.logger.Warn("Operation log maintenance failed", "error", err)
		return 0
	}
	s.logger.Debug("Operation log maintenance completed", "removed", removed, "before", before)
	return removed
}

// LastRun returns the most recent run, if any.
func (s *Service) LastRun() (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return RunRecord{}, false
	}
	return s.history[len(s.history)-1], true
}

// History returns a copy of recent runs, oldest first.
func (s *Service) History() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunRecord, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) scheduledCycle(ctx context.Context, reason string) {
	_, err := s.runCycle(ctx, reason)
	if errors.Is(err, ErrCycleInProgress) {
		s.logger.Debug("Sync cycle skipped, another one is running", "reason", reason)
	}
}

func (s *Service) runCycle(ctx context.Context, reason string) (*engine.CycleResult, error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	rec := RunRecord{StartedAt: s.now(), Reason: reason}
	result, err := s.cycler.RunCycle(ctx)
	rec.FinishedAt = s.now()
	rec.Result = result

	lastError := ""
	if err != nil {
		lastError = err.Error()
		rec.Error = lastError
		if errors.Is(err, engine.ErrTransport) {
			s.logger.Warn("Sync cycle failed, will retry", "reason", reason, "error", err)
		} else {
			s.logger.Error("Sync cycle failed", "reason", reason, "error", err)
		}
	}
	s.record(rec)

	// сохраняем даже при отмене ctx, чтобы UI увидел причину
	if saveErr := s.metadata.SaveLastError(context.WithoutCancel(ctx), lastError); saveErr != nil {
		s.logger.Warn("Failed to save last sync error", "error", saveErr)
	}

	return result, err
}

func (s *Service) record(rec RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, rec)
	if extra := len(s.history) - s.cfg.HistorySize; extra > 0 {
		s.history = append(s.history[:0], s.history[extra:]...)
	}
}

func (s *Service) notifyLoop(ctx context.Context) {
	for {
		err := s.notifier.Subscribe(ctx, func(n api.Notification) {
			s.logger.Debug("Sync notification received", "device_id", n.DeviceID, "cursor", n.Cursor)
			s.Trigger()
		})
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Notification stream lost, reconnecting", "error", err, "retry_in", s.cfg.NotifyRetry)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.NotifyRetry):
		}
	}
}
