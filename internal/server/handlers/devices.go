package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/coursesync/internal/server/middleware"
	"github.com/iudanet/coursesync/internal/server/storage"
)

// DevicesHandler показывает устройства пользователя и их позиции в журнале
type DevicesHandler struct {
	logger  *slog.Logger
	storage storage.DeviceStorage
}

// NewDevicesHandler создает handler списка устройств
func NewDevicesHandler(logger *slog.Logger, storage storage.DeviceStorage) *DevicesHandler {
	return &DevicesHandler{logger: logger, storage: storage}
}

// List обрабатывает GET /api/v1/devices
func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.logger.Error("User ID not found in context")
		sendError(h.logger, w, "missing identity", http.StatusUnauthorized)
		return
	}

	devices, err := h.storage.ListDevices(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list devices", "error", err, "user_id", userID)
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, devices, http.StatusOK)
}
