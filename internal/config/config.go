package config

import (
	"time"
)

type Config struct {
	Storage      StorageConfig      `mapstructure:"storage"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// Storage backends accepted in StorageConfig.Type.
const (
	StorageBadger = "badger"
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
)

type StorageConfig struct {
	Type     string             `mapstructure:"type"`
	Path     string             `mapstructure:"path"` // badger directory or sqlite file
	InMemory bool               `mapstructure:"in_memory"`
	MySQL    DatabaseConnection `mapstructure:"mysql"`
	Keys     StorageKeys        `mapstructure:"keys"`
}

// StorageKeys names the KV entries the engine persists under.
type StorageKeys struct {
	Queue    string `mapstructure:"queue"`
	Mirror   string `mapstructure:"mirror"`
	LastSync string `mapstructure:"last_sync"`
	History  string `mapstructure:"history"`
}

type DatabaseConnection struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Table    string `mapstructure:"table"`
}

type RemoteConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	ClientsPath string `mapstructure:"clients_path"`
	AuthToken   string `mapstructure:"auth_token"`
	Timeout     string `mapstructure:"timeout"`
}

func (r RemoteConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(r.Timeout)
	return d
}

// Connectivity modes accepted in ConnectivityConfig.Mode.
const (
	ConnectivityHTTP   = "http"
	ConnectivityManual = "manual"
)

type ConnectivityConfig struct {
	Mode     string `mapstructure:"mode"`
	ProbeURL string `mapstructure:"probe_url"`
	Interval string `mapstructure:"interval"`
	Timeout  string `mapstructure:"timeout"`
}

func (c ConnectivityConfig) GetInterval() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

func (c ConnectivityConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

type SyncConfig struct {
	RequiredCreateFields []string `mapstructure:"required_create_fields"`
	RequiredUpdateFields []string `mapstructure:"required_update_fields"`
	HistoryLimit         int      `mapstructure:"history_limit"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}
