// Package server собирает HTTP сервер relay: маршруты, middleware и
// корректную остановку.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/coursesync/internal/server/handlers"
	"github.com/iudanet/coursesync/internal/server/middleware"
	"github.com/iudanet/coursesync/internal/server/notify"
)

// Пути эндпоинтов
const (
	HealthPath  = "/api/v1/health"
	SyncPath    = "/api/v1/sync"
	NotifyPath  = "/api/v1/sync/notify"
	DevicesPath = "/api/v1/devices"
)

// Config параметры HTTP сервера.
// RateLimit задает число запросов на пользователя за RateWindow.
type Config struct {
	Addr            string
	Version         string
	RateLimit       int
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
}

// Store хранилище relay сервера
type Store interface {
	handlers.SyncStorage
	handlers.Pinger
}

// Server HTTP сервер синхронизации
type Server struct {
	logger  *slog.Logger
	hub     *notify.Hub
	limiter *middleware.RateLimiter
	handler http.Handler
	cfg     Config
}

// New создает сервер и регистрирует маршруты
func New(cfg Config, store Store, tokens middleware.TokenValidator, logger *slog.Logger) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 120
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		hub:     notify.NewHub(logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}

	auth := middleware.AuthMiddleware(logger, tokens)
	limit := middleware.RateLimitMiddleware(s.limiter, middleware.ByUser, logger)
	protected := func(h http.Handler) http.Handler {
		return auth(limit(h))
	}

	health := handlers.NewHealthHandler(logger, store, cfg.Version)
	sync := handlers.NewSyncHandler(logger, store, s.hub)
	devices := handlers.NewDevicesHandler(logger, store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+HealthPath, health.Health)
	mux.Handle("POST "+SyncPath, protected(http.HandlerFunc(sync.HandleSync)))
	mux.Handle("GET "+NotifyPath, protected(notify.NewHandler(s.hub, logger)))
	mux.Handle("GET "+DevicesPath, protected(http.HandlerFunc(devices.List)))

	var h http.Handler = mux
	h = middleware.SnappyMiddleware(logger)(h)
	h = middleware.LoggingMiddleware(logger, HealthPath)(h)
	h = middleware.RecoveryMiddleware(logger)(h)
	s.handler = h

	return s
}

// Handler возвращает корневой http.Handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub возвращает реестр подписок на уведомления
func (s *Server) Hub() *notify.Hub {
	return s.hub
}

// Close закрывает подписки на уведомления и останавливает rate limiter
func (s *Server) Close() {
	s.hub.Close()
	s.limiter.Stop()
}

// Run слушает cfg.Addr до отмены ctx
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает ln до отмены ctx, затем закрывает подписки и
// дожидается завершения активных запросов.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server listening", "addr", ln.Addr().String(), "version", s.cfg.Version)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server")

		// websocket соединения hijacked и Shutdown их не ждет
		s.Close()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}
