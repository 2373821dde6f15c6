package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/server/middleware"
	"github.com/iudanet/coursesync/internal/server/storage"
	"github.com/iudanet/coursesync/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockSyncStorage простая in-memory реализация SyncStorage
type mockSyncStorage struct {
	saveErr  error
	pullErr  error
	touchErr error
	saved    []*models.SyncOperation
	pull     *storage.PullResult
	rejected map[string]error
	pulls    []pullCall
	touched  []string
	devices  []*storage.Device
}

type pullCall struct {
	userID        string
	excludeDevice string
	cursor        int64
	limit         int
}

func (m *mockSyncStorage) SaveOperations(ctx context.Context, userID string, ops []*models.SyncOperation) (*storage.SaveResult, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	res := &storage.SaveResult{Rejected: make(map[string]error)}
	for _, op := range ops {
		if err, ok := m.rejected[op.ID]; ok {
			res.Rejected[op.ID] = err
			continue
		}
		m.saved = append(m.saved, op)
		res.Inserted = append(res.Inserted, op.ID)
		res.Cursor = int64(len(m.saved))
	}
	return res, nil
}

func (m *mockSyncStorage) PullOperations(ctx context.Context, userID, excludeDevice string, cursor int64, limit int) (*storage.PullResult, error) {
	m.pulls = append(m.pulls, pullCall{userID: userID, excludeDevice: excludeDevice, cursor: cursor, limit: limit})
	if m.pullErr != nil {
		return nil, m.pullErr
	}
	if m.pull != nil {
		return m.pull, nil
	}
	return &storage.PullResult{Cursor: cursor}, nil
}

func (m *mockSyncStorage) LatestCursor(ctx context.Context, userID string) (int64, error) {
	return int64(len(m.saved)), nil
}

func (m *mockSyncStorage) TouchDevice(ctx context.Context, userID, deviceID string, cursor int64, seenAt time.Time) error {
	m.touched = append(m.touched, deviceID)
	return m.touchErr
}

func (m *mockSyncStorage) ListDevices(ctx context.Context, userID string) ([]*storage.Device, error) {
	return m.devices, nil
}

// mockPublisher запоминает уведомления
type mockPublisher struct {
	sent []api.Notification
}

func (m *mockPublisher) Publish(n api.Notification) {
	m.sent = append(m.sent, n)
}

func wireOp(id, deviceID string, counter int64) api.Operation {
	return api.Operation{
		Timestamp:     time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		VectorClock:   map[string]int64{deviceID: counter},
		ID:            id,
		DeviceID:      deviceID,
		UserID:        "user-1",
		OperationType: "create",
		EntityType:    "course",
		EntityID:      "c-" + id,
		Payload:       json.RawMessage(`{"title":"Go"}`),
	}
}

func doSync(t *testing.T, h *SyncHandler, userID, deviceID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewReader(raw))
	if userID != "" {
		req = req.WithContext(middleware.WithIdentity(req.Context(), userID, deviceID))
	}
	w := httptest.NewRecorder()
	h.HandleSync(w, req)
	return w
}

func decodeSync(t *testing.T, w *httptest.ResponseRecorder) api.SyncResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.SyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSyncHandler_AcceptsAndPulls(t *testing.T) {
	inbound := &models.SyncOperation{
		Timestamp:     time.Date(2026, 10, 1, 11, 0, 0, 0, time.UTC),
		VectorClock:   map[string]int64{"device-b": 3, "device-c": 1},
		ID:            "remote-1",
		DeviceID:      "device-b",
		UserID:        "user-1",
		OperationType: models.OperationUpdate,
		EntityType:    "course",
		EntityID:      "c9",
		Payload:       json.RawMessage(`{"title":"B"}`),
	}
	store := &mockSyncStorage{
		pull: &storage.PullResult{Operations: []*models.SyncOperation{inbound}, Cursor: 17, HasMore: true},
	}
	pub := &mockPublisher{}
	h := NewSyncHandler(setupTestLogger(), store, pub)

	req := api.SyncRequest{
		Batch: api.SyncBatch{
			VectorClock: map[string]int64{"device-a": 2, "device-b": 1},
			DeviceID:    "device-a",
			UserID:      "user-1",
			Operations:  []api.Operation{wireOp("op-1", "device-a", 1), wireOp("op-2", "device-a", 2)},
		},
		Cursor: 5,
		Limit:  50,
	}
	resp := decodeSync(t, doSync(t, h, "user-1", "device-a", req))

	assert.Equal(t, []string{"op-1", "op-2"}, resp.Accepted)
	assert.Empty(t, resp.Rejected)
	require.Len(t, resp.Inbound, 1)
	assert.Equal(t, "remote-1", resp.Inbound[0].ID)
	assert.Equal(t, "update", resp.Inbound[0].OperationType)
	assert.Equal(t, int64(17), resp.Cursor)
	assert.True(t, resp.HasMore)
	assert.Equal(t, map[string]int64{"device-a": 2, "device-b": 3, "device-c": 1}, resp.VectorClock,
		"response clock merges request clock with delivered operations")

	require.Len(t, store.pulls, 1)
	assert.Equal(t, pullCall{userID: "user-1", excludeDevice: "device-a", cursor: 5, limit: 50}, store.pulls[0])
	assert.Equal(t, []string{"device-a"}, store.touched)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, api.Notification{UserID: "user-1", DeviceID: "device-a", Cursor: 2}, pub.sent[0])
}

func TestSyncHandler_RejectsInvalidOperations(t *testing.T) {
	store := &mockSyncStorage{
		rejected: map[string]error{"taken": storage.ErrOperationConflict},
	}
	h := NewSyncHandler(setupTestLogger(), store, nil)

	foreignUser := wireOp("foreign-user", "device-a", 3)
	foreignUser.UserID = "user-2"
	foreignDevice := wireOp("foreign-device", "device-z", 1)
	unknownType := wireOp("bad-type", "device-a", 4)
	unknownType.OperationType = "upsert"
	noClock := wireOp("no-clock", "device-a", 5)
	noClock.VectorClock = nil
	anonymous := wireOp("anonymous", "device-a", 6)
	anonymous.UserID = ""
	nulKey := wireOp("nul-key", "device-a", 7)
	nulKey.EntityID += "\x00evil"

	req := api.SyncRequest{
		Batch: api.SyncBatch{
			DeviceID: "device-a",
			Operations: []api.Operation{
				wireOp("ok", "device-a", 1),
				foreignUser,
				foreignDevice,
				unknownType,
				noClock,
				wireOp("taken", "device-a", 2),
				anonymous,
				nulKey,
			},
		},
	}
	resp := decodeSync(t, doSync(t, h, "user-1", "device-a", req))

	assert.Equal(t, []string{"ok", "anonymous"}, resp.Accepted)
	reasons := make(map[string]string, len(resp.Rejected))
	for _, r := range resp.Rejected {
		reasons[r.ID] = r.Reason
	}
	assert.Equal(t, "user_id mismatch", reasons["foreign-user"])
	assert.Equal(t, "device_id mismatch", reasons["foreign-device"])
	assert.Contains(t, reasons["bad-type"], "upsert")
	assert.Contains(t, reasons["no-clock"], "vector_clock")
	assert.Contains(t, reasons["taken"], "another user")
	assert.Contains(t, reasons["nul-key"], "NUL byte")

	// операция без user_id закрепляется за пользователем из токена
	require.Len(t, store.saved, 2)
	assert.Equal(t, "user-1", store.saved[1].UserID)
}

func TestSyncHandler_DefaultAndMaxLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "default", limit: 0, want: DefaultPullLimit},
		{name: "negative", limit: -3, want: DefaultPullLimit},
		{name: "within range", limit: 10, want: 10},
		{name: "clamped", limit: MaxPullLimit * 5, want: MaxPullLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockSyncStorage{}
			h := NewSyncHandler(setupTestLogger(), store, nil)

			decodeSync(t, doSync(t, h, "user-1", "device-a", api.SyncRequest{Limit: tt.limit}))
			require.Len(t, store.pulls, 1)
			assert.Equal(t, tt.want, store.pulls[0].limit)
		})
	}
}

func TestSyncHandler_NoNotificationWithoutNewOperations(t *testing.T) {
	pub := &mockPublisher{}
	h := NewSyncHandler(setupTestLogger(), &mockSyncStorage{}, pub)

	resp := decodeSync(t, doSync(t, h, "user-1", "device-a", api.SyncRequest{Cursor: 3}))
	assert.Empty(t, resp.Accepted)
	assert.NotNil(t, resp.Accepted, "accepted is an empty list, not null")
	assert.Equal(t, int64(3), resp.Cursor)
	assert.Empty(t, pub.sent)
}

func TestSyncHandler_Errors(t *testing.T) {
	tests := []struct {
		body       any
		store      *mockSyncStorage
		name       string
		userID     string
		wantStatus int
	}{
		{
			name:       "missing identity",
			body:       api.SyncRequest{},
			store:      &mockSyncStorage{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed body",
			body:       "not a request",
			store:      &mockSyncStorage{},
			userID:     "user-1",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative cursor",
			body:       api.SyncRequest{Cursor: -1},
			store:      &mockSyncStorage{},
			userID:     "user-1",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "batch from another device",
			body:       api.SyncRequest{Batch: api.SyncBatch{DeviceID: "device-z"}},
			store:      &mockSyncStorage{},
			userID:     "user-1",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "batch of another user",
			body:       api.SyncRequest{Batch: api.SyncBatch{UserID: "user-2"}},
			store:      &mockSyncStorage{},
			userID:     "user-1",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "save failure",
			body:       api.SyncRequest{},
			store:      &mockSyncStorage{saveErr: errors.New("disk full")},
			userID:     "user-1",
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "pull failure",
			body:       api.SyncRequest{},
			store:      &mockSyncStorage{pullErr: errors.New("locked")},
			userID:     "user-1",
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSyncHandler(setupTestLogger(), tt.store, nil)
			w := doSync(t, h, tt.userID, "device-a", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var errResp api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
			assert.Equal(t, http.StatusText(tt.wantStatus), errResp.Error)
			assert.NotContains(t, errResp.Message, "disk full", "storage errors are not exposed")
		})
	}
}

func TestSyncHandler_TouchFailureIsNotFatal(t *testing.T) {
	store := &mockSyncStorage{touchErr: errors.New("devices table locked")}
	h := NewSyncHandler(setupTestLogger(), store, nil)

	decodeSync(t, doSync(t, h, "user-1", "device-a", api.SyncRequest{}))
}

func TestDevicesHandler_List(t *testing.T) {
	seen := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	store := &mockSyncStorage{devices: []*storage.Device{
		{UserID: "user-1", DeviceID: "device-a", Cursor: 4, LastSeenAt: seen},
	}}
	h := NewDevicesHandler(setupTestLogger(), store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), "user-1", "device-a"))
	w := httptest.NewRecorder()
	h.List(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var devices []storage.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, int64(4), devices[0].Cursor)
	assert.Equal(t, seen, devices[0].LastSeenAt)

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
