// Package config loads coresync configuration.
//
// Sources are layered, highest priority last: built-in defaults, a YAML
// file, CORESYNC_-prefixed environment variables and explicitly set command
// line flags. The merged result is validated against an embedded CUE schema.
package config

import (
	"path/filepath"
	"time"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/fetch"
)

// Config holds all coresync settings.
type Config struct {
	DataDir      string         `koanf:"data_dir" json:"data_dir" yaml:"data_dir"`
	DatabaseType string         `koanf:"database_type" json:"database_type" yaml:"database_type"`
	Log          LogConfig      `koanf:"log" json:"log" yaml:"log"`
	Sync         SyncConfig     `koanf:"sync" json:"sync" yaml:"sync"`
	HTTP         HTTPConfig     `koanf:"http" json:"http" yaml:"http"`
	Serve        ServeConfig    `koanf:"serve" json:"serve" yaml:"serve"`
	Cores        []adapter.Spec `koanf:"cores" json:"cores" yaml:"cores"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}

// SyncConfig tunes the sync coordinator.
type SyncConfig struct {
	AdapterConcurrency int           `koanf:"adapter_concurrency" json:"adapter_concurrency" yaml:"adapter_concurrency"`
	MergeConcurrency   int           `koanf:"merge_concurrency" json:"merge_concurrency" yaml:"merge_concurrency"`
	RetentionCap       int           `koanf:"retention_cap" json:"retention_cap" yaml:"retention_cap"`
	RetentionAfterSync bool          `koanf:"retention_after_sync" json:"retention_after_sync" yaml:"retention_after_sync"`
	Interval           time.Duration `koanf:"interval" json:"interval" yaml:"interval"`
}

// HTTPConfig tunes the upstream fetch client.
type HTTPConfig struct {
	Timeout    time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	UserAgent  string        `koanf:"user_agent" json:"user_agent" yaml:"user_agent"`
	MaxRetries int           `koanf:"max_retries" json:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `koanf:"base_delay" json:"base_delay" yaml:"base_delay"`
}

// ServeConfig configures the read API server.
type ServeConfig struct {
	Addr string `koanf:"addr" json:"addr" yaml:"addr"`
}

// Defaults.
const (
	DefaultDataDir            = "data"
	DefaultDatabaseType       = "runtime"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultAdapterConcurrency = 8
	DefaultMergeConcurrency   = 4
	DefaultRetentionCap       = 35
	DefaultHTTPTimeout        = 30 * time.Second
	DefaultUserAgent          = "coresync/1.0"
	DefaultMaxRetries         = 3
	DefaultBaseDelay          = 500 * time.Millisecond
	DefaultServeAddr          = ":8080"
)

// StoreDir is the directory holding one database per core type.
func (c *Config) StoreDir() string {
	return filepath.Join(c.DataDir, c.DatabaseType)
}

// FetchOptions returns the fetch client options for c.
func (c *Config) FetchOptions() []fetch.Option {
	return []fetch.Option{
		fetch.WithTimeout(c.HTTP.Timeout),
		fetch.WithUserAgent(c.HTTP.UserAgent),
		fetch.WithMaxRetries(c.HTTP.MaxRetries),
		fetch.WithBaseDelay(c.HTTP.BaseDelay),
	}
}

// DefaultCores returns the built-in set of cores.
func DefaultCores() []adapter.Spec {
	return []adapter.Spec{
		{Name: "Arclight", Kind: "github", Options: map[string]any{
			"repo": "IzzelAliz/Arclight", "tag_mode": "slash", "build_prefix": "build"}},
		{Name: "Lightfall", Kind: "github", Options: map[string]any{
			"repo": "ArclightPowered/lightfall", "tag_mode": "dash", "build_prefix": "build"}},
		{Name: "LightfallClient", Kind: "github", Options: map[string]any{
			"repo": "ArclightPowered/lightfall-client", "tag_mode": "dash", "build_prefix": "build"}},
		{Name: "CatServer", Kind: "github", Options: map[string]any{
			"repo": "Luohuayu/CatServer", "tag_mode": "commitish"}},
		{Name: "Forge", Kind: "forge"},
		{Name: "Vanilla", Kind: "vanilla"},
		{Name: "Craftbukkit", Kind: "getbukkit", Options: map[string]any{"project": "craftbukkit"}},
		{Name: "Spigot", Kind: "getbukkit", Options: map[string]any{"project": "spigot"}},
		{Name: "Sponge", Kind: "sponge", Options: map[string]any{
			"artifacts": []any{"spongeforge", "spongevanilla"}}},
	}
}
