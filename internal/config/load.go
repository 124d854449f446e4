package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. FIELDSYNC_REMOTE_BASE_URL.
const EnvPrefix = "FIELDSYNC"

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.type", StorageBadger)
	v.SetDefault("storage.path", "data/fieldsync")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("storage.mysql.port", 3306)
	v.SetDefault("storage.mysql.table", "kv_entries")
	v.SetDefault("storage.keys.queue", "sync_pending_operations")
	v.SetDefault("storage.keys.mirror", "local_clients")
	v.SetDefault("storage.keys.last_sync", "last_sync_date")
	v.SetDefault("storage.keys.history", "sync_history")

	v.SetDefault("remote.base_url", "http://localhost:8080")
	v.SetDefault("remote.clients_path", "/api/clients")
	v.SetDefault("remote.timeout", "15s")

	v.SetDefault("connectivity.mode", ConnectivityHTTP)
	v.SetDefault("connectivity.probe_url", "")
	v.SetDefault("connectivity.interval", "10s")
	v.SetDefault("connectivity.timeout", "3s")

	v.SetDefault("sync.required_create_fields", []string{"nom", "prenom", "numeroCni", "telephone"})
	v.SetDefault("sync.required_update_fields", []string{"numeroCni", "telephone"})
	v.SetDefault("sync.history_limit", 50)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "@every 5m")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")
	v.SetDefault("logging.max_size_mb", 20)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
}

// LoadConfig reads the YAML file at path, layered over defaults and under
// FIELDSYNC_* environment overrides. A missing file is not an error: the
// agent can run on defaults plus environment alone.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
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

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Validate rejects settings the engine cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageBadger, StorageSQLite:
		if c.Storage.Path == "" && !c.Storage.InMemory {
			return fmt.Errorf("config: storage.path is required for %s storage", c.Storage.Type)
		}
	case StorageMySQL:
		if c.Storage.MySQL.Host == "" || c.Storage.MySQL.Database == "" {
			return errors.New("config: storage.mysql.host and storage.mysql.database are required")
		}
	default:
		return fmt.Errorf("config: unknown storage type %q", c.Storage.Type)
	}

	switch c.Connectivity.Mode {
	case ConnectivityHTTP, ConnectivityManual:
	default:
		return fmt.Errorf("config: unknown connectivity mode %q", c.Connectivity.Mode)
	}

	for name, raw := range map[string]string{
		"remote.timeout":        c.Remote.Timeout,
		"connectivity.interval": c.Connectivity.Interval,
		"connectivity.timeout":  c.Connectivity.Timeout,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}

	if c.Remote.BaseURL == "" {
		return errors.New("config: remote.base_url is required")
	}

	return nil
}
