// Package config загружает настройки клиента синхронизации.
//
// Порядок приоритета (от низшего к высшему): значения по умолчанию,
// YAML файл конфигурации, переменные окружения COURSESYNC_*, флаги командной строки.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iudanet/coursesync/internal/conflict"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "COURSESYNC"

// DefaultEntityTypes типы сущностей, известные клиенту по умолчанию
var DefaultEntityTypes = []string{
	"user", "course", "category", "topic", "post",
	"tag", "assignment", "submission", "module",
}

// Config корневая конфигурация клиента
type Config struct {
	Conflict    ConflictConfig    `mapstructure:"conflict"`
	DeviceID    string            `mapstructure:"device_id"`
	UserID      string            `mapstructure:"user_id"`
	ServerURL   string            `mapstructure:"server_url"`
	AuthToken   string            `mapstructure:"auth_token"`
	DBPath      string            `mapstructure:"db_path"`
	Log         LogConfig         `mapstructure:"log"`
	EntityTypes []string          `mapstructure:"entity_types"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// SyncConfig параметры циклов синхронизации
type SyncConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	NotifyRetry    time.Duration `mapstructure:"notify_retry"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxRounds      int           `mapstructure:"max_rounds"`
	Compress       bool          `mapstructure:"compress"`
	Notify         bool          `mapstructure:"notify"`
}

// ConflictConfig параметры разрешения конфликтов
type ConflictConfig struct {
	// MergeHooks entity_type -> имя встроенного merge hook
	MergeHooks   map[string]string `mapstructure:"merge_hooks"`
	DeletePolicy string            `mapstructure:"delete_policy"`
}

// MaintenanceConfig параметры компакции журнала
type MaintenanceConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

// LogConfig параметры логирования
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	// ключи без значения регистрируются пустыми, иначе AutomaticEnv не увидит их при Unmarshal
	v.SetDefault("device_id", "")
	v.SetDefault("user_id", "")
	v.SetDefault("auth_token", "")
	v.SetDefault("log.file", "")

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("db_path", "coursesync.db")
	v.SetDefault("entity_types", DefaultEntityTypes)

	v.SetDefault("sync.interval", time.Minute)
	v.SetDefault("sync.request_timeout", 30*time.Second)
	v.SetDefault("sync.notify_retry", 10*time.Second)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.max_rounds", 10)
	v.SetDefault("sync.compress", false)
	v.SetDefault("sync.notify", true)

	v.SetDefault("conflict.delete_policy", string(conflict.DeleteSurvive))

	v.SetDefault("maintenance.interval", time.Hour)
	v.SetDefault("maintenance.retention", 30*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load читает конфигурацию. path пустой - ищем coursesync.yaml в текущем
// каталоге и в $HOME/.config/coursesync; отсутствие файла не ошибка.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("coursesync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/coursesync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalidConfig)
	}
	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: server_url %q is not an absolute URL", ErrInvalidConfig, c.ServerURL)
		}
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("%w: sync.interval must be positive", ErrInvalidConfig)
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("%w: sync.batch_size must be positive", ErrInvalidConfig)
	}
	if c.Sync.RequestTimeout <= 0 {
		return fmt.Errorf("%w: sync.request_timeout must be positive", ErrInvalidConfig)
	}
	if c.Maintenance.Retention < 0 {
		return fmt.Errorf("%w: maintenance.retention must not be negative", ErrInvalidConfig)
	}
	if _, err := conflict.ParseDeletePolicy(c.Conflict.DeletePolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for entityType, hook := range c.Conflict.MergeHooks {
		if _, err := conflict.BuiltinHook(hook); err != nil {
			return fmt.Errorf("%w: merge hook for %s: %w", ErrInvalidConfig, entityType, err)
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// ResolverOptions переводит секцию conflict в опции резолвера
func (c *Config) ResolverOptions() ([]conflict.Option, error) {
	policy, err := conflict.ParseDeletePolicy(c.Conflict.DeletePolicy)
	if err != nil {
		return nil, err
	}

	opts := []conflict.Option{conflict.WithDeletePolicy(policy)}
	for entityType, name := range c.Conflict.MergeHooks {
		hook, err := conflict.BuiltinHook(name)
		if err != nil {
			return nil, fmt.Errorf("merge hook for %s: %w", entityType, err)
		}
		opts = append(opts, conflict.WithMergeHook(entityType, hook))
	}
	return opts, nil
}
