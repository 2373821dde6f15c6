package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/server/middleware"
	"github.com/iudanet/coursesync/internal/server/storage"
	"github.com/iudanet/coursesync/internal/vclock"
	"github.com/iudanet/coursesync/pkg/api"
)

const (
	// DefaultPullLimit размер входящей порции, если клиент не указал limit
	DefaultPullLimit = 100
	// MaxPullLimit верхняя граница limit
	MaxPullLimit = 1000
	// maxRequestBody предел тела запроса синхронизации
	maxRequestBody = 32 << 20
)

// SyncStorage хранилище, с которым работает SyncHandler
type SyncStorage interface {
	storage.OperationStorage
	storage.DeviceStorage
}

// Publisher оповещает другие устройства пользователя о новых операциях
type Publisher interface {
	Publish(n api.Notification)
}

// SyncHandler handles synchronization requests
type SyncHandler struct {
	logger    *slog.Logger
	storage   SyncStorage
	publisher Publisher
	now       func() time.Time
}

// NewSyncHandler creates a new sync handler. publisher может быть nil.
func NewSyncHandler(logger *slog.Logger, storage SyncStorage, publisher Publisher) *SyncHandler {
	return &SyncHandler{
		logger:    logger,
		storage:   storage,
		publisher: publisher,
		now:       time.Now,
	}
}

// HandleSync обрабатывает POST /api/v1/sync.
// Сохраняет пакет операций устройства и возвращает операции других
// устройств пользователя после cursor.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		h.logger.Error("User ID not found in context")
		sendError(h.logger, w, "missing identity", http.StatusUnauthorized)
		return
	}
	deviceID, ok := middleware.GetDeviceID(ctx)
	if !ok {
		h.logger.Error("Device ID not found in context", "user_id", userID)
		sendError(h.logger, w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req api.SyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode sync request", "error", err)
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := checkBatch(&req, userID, deviceID); err != nil {
		h.logger.Warn("Sync batch rejected",
			"user_id", userID,
			"device_id", deviceID,
			"error", err)
		status := http.StatusBadRequest
		if errors.Is(err, errForbidden) {
			status = http.StatusForbidden
		}
		sendError(h.logger, w, err.Error(), status)
		return
	}

	h.logger.Info("POST sync request",
		"user_id", userID,
		"device_id", deviceID,
		"cursor", req.Cursor,
		"operations", len(req.Batch.Operations))

	resp, err := h.exchange(ctx, &req, userID, deviceID)
	if err != nil {
		h.logger.Error("Sync failed", "error", err, "user_id", userID, "device_id", deviceID)
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, resp, http.StatusOK)

	h.logger.Info("POST sync completed",
		"user_id", userID,
		"device_id", deviceID,
		"accepted", len(resp.Accepted),
		"rejected", len(resp.Rejected),
		"inbound", len(resp.Inbound),
		"cursor", resp.Cursor,
		"has_more", resp.HasMore)
}

func (h *SyncHandler) exchange(ctx context.Context, req *api.SyncRequest, userID, deviceID string) (*api.SyncResponse, error) {
	resp := &api.SyncResponse{
		Accepted: []string{},
		Inbound:  []api.Operation{},
	}

	valid := make([]*models.SyncOperation, 0, len(req.Batch.Operations))
	for _, wire := range req.Batch.Operations {
		op := fromAPI(wire)
		if reason := rejectReason(op, userID, deviceID); reason != "" {
			h.logger.Warn("Operation rejected",
				"operation_id", op.ID,
				"user_id", userID,
				"device_id", deviceID,
				"reason", reason)
			resp.Rejected = append(resp.Rejected, api.RejectedOperation{ID: op.ID, Reason: reason})
			continue
		}
		op.UserID = userID
		valid = append(valid, op)
	}

	saved, err := h.storage.SaveOperations(ctx, userID, valid)
	if err != nil {
		return nil, fmt.Errorf("failed to save operations: %w", err)
	}

	// ответ перечисляет принятые операции в порядке запроса
	for _, op := range valid {
		if rejectErr, ok := saved.Rejected[op.ID]; ok {
			resp.Rejected = append(resp.Rejected, api.RejectedOperation{ID: op.ID, Reason: rejectErr.Error()})
			continue
		}
		resp.Accepted = append(resp.Accepted, op.ID)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPullLimit
	}
	limit = min(limit, MaxPullLimit)

	pulled, err := h.storage.PullOperations(ctx, userID, deviceID, req.Cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pull operations: %w", err)
	}

	clock := vclock.VectorClock(req.Batch.VectorClock).Clone()
	for _, op := range pulled.Operations {
		resp.Inbound = append(resp.Inbound, toAPI(op))
		clock = clock.Merge(op.VectorClock)
	}
	resp.VectorClock = clock
	resp.Cursor = pulled.Cursor
	resp.HasMore = pulled.HasMore
	resp.ServerTime = h.now().UTC()

	if err := h.storage.TouchDevice(ctx, userID, deviceID, pulled.Cursor, resp.ServerTime); err != nil {
		// учет устройств не влияет на результат синхронизации
		h.logger.Warn("Failed to record device activity", "error", err, "device_id", deviceID)
	}

	if len(saved.Inserted) > 0 && h.publisher != nil {
		h.publisher.Publish(api.Notification{
			UserID:   userID,
			DeviceID: deviceID,
			Cursor:   saved.Cursor,
		})
	}

	return resp, nil
}

var (
	errForbidden     = errors.New("forbidden")
	errInvalidCursor = errors.New("cursor must not be negative")
)

// checkBatch проверяет, что пакет принадлежит устройству из токена
func checkBatch(req *api.SyncRequest, userID, deviceID string) error {
	if req.Cursor < 0 {
		return errInvalidCursor
	}
	if req.Batch.DeviceID != "" && req.Batch.DeviceID != deviceID {
		return fmt.Errorf("%w: batch device_id does not match token", errForbidden)
	}
	if req.Batch.UserID != "" && req.Batch.UserID != userID {
		return fmt.Errorf("%w: batch user_id does not match token", errForbidden)
	}
	return nil
}

// rejectReason возвращает причину отказа или пустую строку для допустимой операции
func rejectReason(op *models.SyncOperation, userID, deviceID string) string {
	if op.UserID != "" && op.UserID != userID {
		return "user_id mismatch"
	}
	if op.DeviceID != deviceID {
		return "device_id mismatch"
	}
	if err := op.Validate(); err != nil {
		return err.Error()
	}
	if len(op.Payload) > 0 && !json.Valid(op.Payload) {
		return "malformed payload"
	}
	return ""
}
