package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/iudanet/coursesync/internal/client/engine"
	"github.com/iudanet/coursesync/internal/client/iocli"
	"github.com/iudanet/coursesync/internal/client/oplog"
	"github.com/iudanet/coursesync/internal/config"
	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/pkg/api"
)

// harness запускает команды против временной базы и поддельного транспорта
type harness struct {
	transport *engine.TransportMock
	stdin     string
	cfgPath   string
	dbPath    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "coursesync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("user_id: user-1\nsync:\n  notify: false\n"), 0600))

	return &harness{
		transport: acceptAll(),
		cfgPath:   cfgPath,
		dbPath:    filepath.Join(dir, "client.db"),
	}
}

// acceptAll подтверждает все операции и ничего не присылает
func acceptAll() *engine.TransportMock {
	return &engine.TransportMock{
		ExchangeFunc: func(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
			accepted := make([]string, 0, len(req.Batch.Operations))
			for _, op := range req.Batch.Operations {
				accepted = append(accepted, op.ID)
			}
			return &api.SyncResponse{
				ServerTime:  time.Now(),
				VectorClock: req.Batch.VectorClock,
				Accepted:    accepted,
				Cursor:      req.Cursor,
			}, nil
		},
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out strings.Builder
	c := &Cli{
		io:     iocli.New(strings.NewReader(h.stdin), &out),
		v:      viper.New(),
		logOut: io.Discard,
		now:    time.Now,
		build:  BuildInfo{Version: "test", BuildDate: "today", GitCommit: "abc123"},
		openApp: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
			return openApp(ctx, cfg, logger, h.transport, nil)
		},
	}

	root := c.Command()
	root.SetArgs(append([]string{"--config", h.cfgPath, "--db", h.dbPath}, args...))
	err := root.ExecuteContext(context.Background())
	require.NoError(t, c.close())
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, "coursesync %s", strings.Join(args, " "))
	return out
}

func (h *harness) status(t *testing.T) statusView {
	t.Helper()
	var view statusView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "status", "-o", "json")), &view))
	return view
}

func (h *harness) entity(t *testing.T, entityType, entityID string) entityView {
	t.Helper()
	var view entityView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "get", entityType, entityID, "-o", "json")), &view))
	return view
}

func TestVersion_DoesNotOpenDatabase(t *testing.T) {
	var out strings.Builder
	c := &Cli{
		io:     iocli.New(nil, &out),
		v:      viper.New(),
		logOut: io.Discard,
		build:  BuildInfo{Version: "1.2.3", BuildDate: "2026-10-01", GitCommit: "deadbeef"},
		openApp: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
			t.Fatal("version must not open the database")
			return nil, nil
		},
	}

	root := c.Command()
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "Version:    1.2.3")
	assert.Contains(t, out.String(), "Git Commit: deadbeef")
}

func TestAppend_CreateAndGet(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "append", "course", "create", "c1", "--payload", `{ "title": "Go basics" }`, "-o", "text")
	assert.Contains(t, out, "create course/c1 queued for sync")
	assert.Contains(t, out, "Operation:")

	view := h.entity(t, "course", "c1")
	assert.Equal(t, models.StatusPendingCreate, view.Status)
	assert.JSONEq(t, `{"title":"Go basics"}`, string(view.Payload))
	assert.Equal(t, `{"title":"Go basics"}`, string(view.Payload), "payload is stored compacted")
	assert.False(t, view.Deleted)
}

func TestAppend_JSONOutput(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "append", "topic", "create", "-p", `{"name":"intro"}`, "-o", "json")

	var op models.SyncOperation
	require.NoError(t, json.Unmarshal([]byte(out), &op))
	assert.NotEmpty(t, op.EntityID, "provisional id is generated for create")
	assert.Equal(t, models.OperationCreate, op.OperationType)
	assert.Equal(t, "user-1", op.UserID)
	assert.Equal(t, int64(1), op.VectorClock.Get(op.DeviceID))
}

func TestAppend_PayloadFromStdin(t *testing.T) {
	h := newHarness(t)
	h.stdin = "{\n  \"title\": \"From pipe\"\n}\n"

	h.mustRun(t, "append", "post", "create", "p1", "--file", "-")

	view := h.entity(t, "post", "p1")
	assert.Equal(t, `{"title":"From pipe"}`, string(view.Payload))
}

func TestAppend_Errors(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		args    []string
	}{
		{
			name:    "unknown operation type",
			args:    []string{"append", "course", "upsert", "c1", "-p", "{}"},
			wantErr: models.ErrUnknownOperationType,
		},
		{
			name:    "invalid payload",
			args:    []string{"append", "course", "create", "c1", "-p", "{not json"},
			wantErr: oplog.ErrInvalidPayload,
		},
		{
			name:    "unknown entity type",
			args:    []string{"append", "spaceship", "create", "s1", "-p", "{}"},
			wantErr: oplog.ErrUnknownEntityType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.run(t, tt.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAppend_PayloadAndFileConflict(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "append", "course", "create", "c1", "-p", "{}", "-f", "x.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --payload or --file")
}

func TestSync_PushesQueue(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "append", "course", "create", "c1", "-p", `{"title":"Go"}`)
	h.mustRun(t, "append", "course", "update", "c1", "-p", `{"title":"Go 2"}`)

	assert.Equal(t, 2, h.status(t).Pending)

	var result engine.CycleResult
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "sync", "-o", "json")), &result))
	assert.Equal(t, 2, result.Pushed)
	assert.Equal(t, 2, result.Acknowledged)
	assert.Len(t, h.transport.ExchangeCalls(), 1)

	status := h.status(t)
	assert.Zero(t, status.Pending)
	assert.Empty(t, status.LastError)
	require.NotNil(t, status.LastSync)
	assert.Equal(t, 1, status.Counts[models.StatusSynced])
	assert.Equal(t, models.StatusSynced, h.entity(t, "course", "c1").Status)
}

func TestSync_TransportFailureKeepsQueue(t *testing.T) {
	h := newHarness(t)
	h.transport = &engine.TransportMock{
		ExchangeFunc: func(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	h.mustRun(t, "append", "course", "create", "c1", "-p", `{"title":"Go"}`)

	_, err := h.run(t, "sync")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrTransport)
	assert.Contains(t, err.Error(), "synchronization failed")

	status := h.status(t)
	assert.Equal(t, 1, status.Pending)
	assert.Contains(t, status.LastError, "connection refused")
	assert.Nil(t, status.LastSync)
	assert.Equal(t, models.StatusPendingCreate, h.entity(t, "course", "c1").Status)
}

func TestSync_TextOutput(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "append", "course", "create", "c1", "-p", `{}`)

	out := h.mustRun(t, "sync", "-o", "text")
	assert.Contains(t, out, "Synchronization completed")
	assert.Contains(t, out, "Pushed to server:   1 operation(s)")
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "append", "course", "create", "c1", "-p", `{"title":"Go"}`)
	h.mustRun(t, "sync")
	h.mustRun(t, "delete", "course", "c1")

	view := h.entity(t, "course", "c1")
	assert.True(t, view.Deleted)
	assert.Equal(t, models.StatusPendingDelete, view.Status)
	assert.JSONEq(t, `{"title":"Go"}`, string(view.Payload), "tombstone keeps the last payload")

	_, err := h.run(t, "delete", "course", "c1")
	assert.ErrorIs(t, err, oplog.ErrEntityDeleted)
}

func TestList(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "append", "course", "create", "c2", "-p", `{}`)
	h.mustRun(t, "append", "course", "create", "c1", "-p", `{}`)
	h.mustRun(t, "sync")
	h.mustRun(t, "append", "post", "create", "p1", "-p", `{}`)

	var all []entityView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "list", "-o", "json")), &all))
	require.Len(t, all, 3)
	assert.Equal(t, "c1", all[0].ID)
	assert.Equal(t, "c2", all[1].ID)
	assert.Equal(t, "post", all[2].Type)

	var pending []entityView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "list", "--pending", "-o", "json")), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "p1", pending[0].ID)

	out := h.mustRun(t, "list", "course", "-o", "text")
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "synced")
	assert.NotContains(t, out, "p1")
	assert.Contains(t, out, "Total: 2")
}

func TestGet_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "get", "course", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity not found")
}

func TestConflicts_CreateCreate(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "--device", "device-a", "append", "course", "create", "c1", "-p", `{"title":"A"}`)

	h.transport = &engine.TransportMock{
		ExchangeFunc: func(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
			accepted := make([]string, 0, len(req.Batch.Operations))
			for _, op := range req.Batch.Operations {
				accepted = append(accepted, op.ID)
			}
			return &api.SyncResponse{
				VectorClock: map[string]int64{"device-a": 1, "device-b": 1},
				Accepted:    accepted,
				Inbound: []api.Operation{{
					Timestamp:     time.Now(),
					VectorClock:   map[string]int64{"device-b": 1},
					ID:            "0b6a4f3e-remote-op",
					DeviceID:      "device-b",
					UserID:        "user-1",
					OperationType: "create",
					EntityType:    "course",
					EntityID:      "c1",
					Payload:       json.RawMessage(`{"title":"B"}`),
				}},
				Cursor: 1,
			}, nil
		},
	}

	var result engine.CycleResult
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "sync", "-o", "json")), &result))
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 1, result.Duplicates)

	var view conflictsView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "conflicts", "--side-records", "-o", "json")), &view))
	require.Len(t, view.Conflicts, 1)
	assert.Equal(t, models.ConflictCreateCreate, view.Conflicts[0].Type)
	assert.Equal(t, models.ResolutionKeepBoth, view.Conflicts[0].Resolution)
	assert.NotEmpty(t, view.Conflicts[0].DuplicateEntityID)

	// локальная версия сохранена под исходным id, удаленная стала дубликатом
	assert.JSONEq(t, `{"title":"A"}`, string(h.entity(t, "course", "c1").Payload))
	dup := h.entity(t, "course", view.Conflicts[0].DuplicateEntityID)
	assert.JSONEq(t, `{"title":"B"}`, string(dup.Payload))

	out := h.mustRun(t, "conflicts", "-o", "text")
	assert.Contains(t, out, "create_create")
	assert.Contains(t, out, "course/c1")
}

func TestQuarantine_RejectedOperation(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "append", "course", "create", "c1", "-p", `{}`)
	h.transport = &engine.TransportMock{
		ExchangeFunc: func(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
			rejected := make([]api.RejectedOperation, 0, len(req.Batch.Operations))
			for _, op := range req.Batch.Operations {
				rejected = append(rejected, api.RejectedOperation{ID: op.ID, Reason: "schema violation"})
			}
			return &api.SyncResponse{VectorClock: req.Batch.VectorClock, Rejected: rejected}, nil
		},
	}

	h.mustRun(t, "sync")

	var views []quarantineView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "quarantine", "-o", "json")), &views))
	require.Len(t, views, 1)
	assert.Equal(t, models.QuarantineLocal, views[0].Source)
	assert.Equal(t, "schema violation", views[0].Reason)
	assert.Equal(t, "c1", views[0].EntityID)

	status := h.status(t)
	assert.Zero(t, status.Pending, "quarantined operation leaves the queue")
	assert.Equal(t, 1, status.Quarantined)

	out := h.mustRun(t, "quarantine", "-o", "yaml")
	assert.Contains(t, out, "reason: schema violation")
}

func TestQuarantine_Empty(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "quarantine", "-o", "text")
	assert.Contains(t, out, "Quarantine is empty.")
}

func TestCompact(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "append", "course", "create", "c1", "-p", `{}`)
	h.mustRun(t, "append", "course", "update", "c1", "-p", `{"v":1}`)
	h.mustRun(t, "append", "course", "create", "c2", "-p", `{}`)
	h.mustRun(t, "sync")
	h.mustRun(t, "append", "course", "update", "c1", "-p", `{"v":2}`)

	// retention по умолчанию 30 дней: ничего не удаляется
	out := h.mustRun(t, "compact")
	assert.Contains(t, out, "Removed 0 synced operation(s)")

	// create остаются, удаляется только перекрытое изменение c1
	time.Sleep(5 * time.Millisecond)
	out = h.mustRun(t, "compact", "--retention", "1ms")
	assert.Contains(t, out, "Removed 1 synced operation(s)")

	// неподтвержденная операция остается в очереди
	assert.Equal(t, 1, h.status(t).Pending)
}

func TestStatus_Formats(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "append", "course", "create", "c1", "-p", `{}`)

	text := h.mustRun(t, "status", "-o", "text")
	assert.Contains(t, text, "=== Sync Status ===")
	assert.Contains(t, text, "Last sync:     never")
	assert.Contains(t, text, "Pending sync: 1 operation(s)")
	assert.Contains(t, text, "Delete policy: survive")

	var view statusView
	require.NoError(t, yaml.Unmarshal([]byte(h.mustRun(t, "status", "-o", "yaml")), &view))
	assert.Equal(t, 1, view.Pending)
	assert.Equal(t, "user-1", view.UserID)

	// вывод не в терминал: auto выбирает json
	var auto statusView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "status")), &auto))
	assert.Equal(t, 1, auto.Pending)

	_, err := h.run(t, "status", "-o", "xml")
	assert.Error(t, err)
}

func TestDeviceID_Persistence(t *testing.T) {
	h := newHarness(t)

	first := h.status(t).DeviceID
	require.NotEmpty(t, first, "device id is generated on first start")
	assert.Equal(t, first, h.status(t).DeviceID)

	_, err := h.run(t, "--device", "other-device", "status")
	assert.ErrorIs(t, err, ErrDeviceMismatch)

	_, err = h.run(t, "--device", first, "status")
	assert.NoError(t, err)
}
