package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coursesync/internal/conflict"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coursesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, "coursesync.db", cfg.DBPath)
	assert.Equal(t, DefaultEntityTypes, cfg.EntityTypes)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 30*time.Second, cfg.Sync.RequestTimeout)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, 10, cfg.Sync.MaxRounds)
	assert.True(t, cfg.Sync.Notify)
	assert.False(t, cfg.Sync.Compress)
	assert.Equal(t, "survive", cfg.Conflict.DeletePolicy)
	assert.Equal(t, 30*24*time.Hour, cfg.Maintenance.Retention)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.DeviceID)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
device_id: laptop-1
user_id: user-42
server_url: https://sync.example.com
db_path: /var/lib/coursesync/client.db
entity_types: [course, post]
sync:
  interval: 15s
  batch_size: 50
  compress: true
conflict:
  delete_policy: delete
  merge_hooks:
    course: shallow
maintenance:
  retention: 24h
log:
  level: debug
  format: json
  file: /var/log/coursesync.log
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "laptop-1", cfg.DeviceID)
	assert.Equal(t, "user-42", cfg.UserID)
	assert.Equal(t, "https://sync.example.com", cfg.ServerURL)
	assert.Equal(t, []string{"course", "post"}, cfg.EntityTypes)
	assert.Equal(t, 15*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.True(t, cfg.Sync.Compress)
	// значения, не указанные в файле, берутся по умолчанию
	assert.Equal(t, 30*time.Second, cfg.Sync.RequestTimeout)
	assert.Equal(t, "delete", cfg.Conflict.DeletePolicy)
	assert.Equal(t, map[string]string{"course": "shallow"}, cfg.Conflict.MergeHooks)
	assert.Equal(t, 24*time.Hour, cfg.Maintenance.Retention)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/var/log/coursesync.log", cfg.Log.File)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
device_id: from-file
sync:
  batch_size: 50
`)
	t.Setenv("COURSESYNC_DEVICE_ID", "from-env")
	t.Setenv("COURSESYNC_SYNC_BATCH_SIZE", "25")
	t.Setenv("COURSESYNC_AUTH_TOKEN", "secret")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.DeviceID)
	assert.Equal(t, 25, cfg.Sync.BatchSize)
	assert.Equal(t, "secret", cfg.AuthToken)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, "conflict:\n  delete_policy: whatever\n")

	_, err := Load(viper.New(), path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, conflict.ErrUnknownPolicy)
}

func validConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		DBPath:    "client.db",
		Sync: SyncConfig{
			Interval:       time.Minute,
			RequestTimeout: time.Second,
			BatchSize:      10,
		},
		Log: LogConfig{Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		mutate  func(c *Config)
		wantErr error
		name    string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "empty server url allowed",
			mutate: func(c *Config) { c.ServerURL = "" },
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.DBPath = "" },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "relative server url",
			mutate:  func(c *Config) { c.ServerURL = "localhost:8080/api" },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Sync.Interval = 0 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Sync.BatchSize = 0 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "zero request timeout",
			mutate:  func(c *Config) { c.Sync.RequestTimeout = 0 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Maintenance.Retention = -time.Hour },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "unknown merge hook",
			mutate:  func(c *Config) { c.Conflict.MergeHooks = map[string]string{"post": "deep"} },
			wantErr: conflict.ErrUnknownHook,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolverOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Conflict.DeletePolicy = "delete"
	cfg.Conflict.MergeHooks = map[string]string{"course": "shallow"}

	opts, err := cfg.ResolverOptions()
	require.NoError(t, err)

	resolver := conflict.NewResolver(opts...)
	assert.Equal(t, conflict.DeletePrefer, resolver.Policy())
	assert.True(t, resolver.HasHook("course"))
	assert.False(t, resolver.HasHook("post"))
}
