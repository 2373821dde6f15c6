package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/iudanet/coursesync/internal/server/middleware"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Handler обслуживает GET /api/v1/sync/notify.
// Должен стоять после AuthMiddleware: подписка привязана к устройству из токена.
type Handler struct {
	hub          *Hub
	logger       *slog.Logger
	pingInterval time.Duration
}

// NewHandler создает websocket handler уведомлений
func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		hub:          hub,
		logger:       logger,
		pingInterval: pingInterval,
	}
}

// ServeHTTP принимает websocket соединение и пересылает уведомления до
// отключения клиента или остановки хаба. Сообщения клиента игнорируются.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.logger.Error("User ID not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	deviceID, _ := middleware.GetDeviceID(r.Context())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err, "user_id", userID)
		return
	}
	defer func() {
		_ = conn.CloseNow()
	}()

	sub := h.hub.Subscribe(userID, deviceID)
	defer sub.Close()

	// CloseRead читает управляющие фреймы и отменяет ctx, когда клиент уходит
	ctx := conn.CloseRead(r.Context())

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Subscriber disconnected", "user_id", userID, "device_id", deviceID)
			return

		case n, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, n); err != nil {
				h.logger.Warn("Failed to send notification", "error", err, "user_id", userID, "device_id", deviceID)
				return
			}

		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.logger.Debug("Subscriber ping failed", "error", err, "device_id", deviceID)
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
