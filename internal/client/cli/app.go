package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iudanet/coursesync/internal/client/api"
	"github.com/iudanet/coursesync/internal/client/engine"
	"github.com/iudanet/coursesync/internal/client/oplog"
	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/client/storage/boltdb"
	"github.com/iudanet/coursesync/internal/client/sync"
	"github.com/iudanet/coursesync/internal/config"
	"github.com/iudanet/coursesync/internal/conflict"
)

// ErrDeviceMismatch возвращается, если device_id из конфигурации не совпадает
// с сохраненным в базе: часы устройства привязаны к его идентификатору
var ErrDeviceMismatch = errors.New("configured device id does not match the database")

// App собранный клиент: хранилище, журнал, движок и планировщик
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *boltdb.Storage
	oplog    *oplog.Log
	engine   *engine.Engine
	service  *sync.Service
	client   *api.Client
	resolver *conflict.Resolver
}

// OpenApp открывает базу и собирает клиент с HTTP транспортом
func OpenApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	client := api.NewClient(cfg.ServerURL,
		api.WithToken(cfg.AuthToken),
		api.WithCompression(cfg.Sync.Compress),
		api.WithTimeout(cfg.Sync.RequestTimeout))

	var notifier sync.Notifier
	if cfg.Sync.Notify {
		notifier = client
	}

	app, err := openApp(ctx, cfg, logger, client, notifier)
	if err != nil {
		return nil, err
	}
	app.client = client
	return app, nil
}

func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, transport engine.Transport, notifier sync.Notifier) (*App, error) {
	opts, err := cfg.ResolverOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid conflict settings: %w", err)
	}

	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	deviceID, err := resolveDeviceID(ctx, store, cfg.DeviceID)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger = logger.With("device_id", deviceID)

	log, err := oplog.Open(ctx, store, oplog.Config{
		DeviceID:    deviceID,
		UserID:      cfg.UserID,
		EntityTypes: cfg.EntityTypes,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open operation log: %w", err)
	}

	resolver := conflict.NewResolver(opts...)
	eng := engine.New(log, store, resolver, transport, engine.Config{
		BatchSize:      cfg.Sync.BatchSize,
		RequestTimeout: cfg.Sync.RequestTimeout,
		MaxRounds:      cfg.Sync.MaxRounds,
	}, logger)

	service := sync.NewService(eng, notifier, store, sync.Config{
		Interval:            cfg.Sync.Interval,
		MaintenanceInterval: cfg.Maintenance.Interval,
		Retention:           cfg.Maintenance.Retention,
		NotifyRetry:         cfg.Sync.NotifyRetry,
	}, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		oplog:    log,
		engine:   eng,
		service:  service,
		resolver: resolver,
	}, nil
}

// Close closes the local database.
func (a *App) Close() error {
	return a.store.Close()
}

// DeviceID returns the identity the operation log writes under.
func (a *App) DeviceID() string {
	return a.oplog.DeviceID()
}

// resolveDeviceID берет идентификатор из конфигурации или базы.
// Если нигде его нет, генерирует новый и сохраняет.
func resolveDeviceID(ctx context.Context, store storage.Store, configured string) (string, error) {
	var deviceID string
	err := store.Update(ctx, func(tx storage.Tx) error {
		stored, err := tx.GetDeviceID()
		if err != nil {
			return err
		}

		switch {
		case stored != "" && configured != "" && stored != configured:
			return fmt.Errorf("%w: configured %q, stored %q", ErrDeviceMismatch, configured, stored)
		case stored != "":
			deviceID = stored
			return nil
		case configured != "":
			deviceID = configured
		default:
			deviceID = uuid.NewString()
		}
		return tx.SaveDeviceID(deviceID)
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve device id: %w", err)
	}
	return deviceID, nil
}
