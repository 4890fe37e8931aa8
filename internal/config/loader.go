package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: CORESYNC_SYNC__INTERVAL=10m sets sync.interval.
const EnvPrefix = "CORESYNC_"

// configFileNames are searched in the working directory when no explicit
// file is given.
var configFileNames = []string{"coresync.yaml", "coresync.yml"}

// flagKeys maps command line flags to configuration keys. Flags not listed
// here are not configuration.
var flagKeys = map[string]string{
	"data-dir":      "data_dir",
	"database-type": "database_type",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"interval":      "sync.interval",
	"retention":     "sync.retention_after_sync",
	"cap":           "sync.retention_cap",
	"addr":          "serve.addr",
}

// Loaded is a validated configuration plus the file it came from, if any.
type Loaded struct {
	*Config
	File string
}

// FindConfigFile returns explicit if set, else the first default config file
// present in the working directory, else "".
func FindConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func defaults() map[string]any {
	return map[string]any{
		"data_dir":                  DefaultDataDir,
		"database_type":             DefaultDatabaseType,
		"log.level":                 DefaultLogLevel,
		"log.format":                DefaultLogFormat,
		"sync.adapter_concurrency":  DefaultAdapterConcurrency,
		"sync.merge_concurrency":    DefaultMergeConcurrency,
		"sync.retention_cap":        DefaultRetentionCap,
		"sync.retention_after_sync": false,
		"sync.interval":             "0s",
		"http.timeout":              DefaultHTTPTimeout.String(),
		"http.user_agent":           DefaultUserAgent,
		"http.max_retries":          DefaultMaxRetries,
		"http.base_delay":           DefaultBaseDelay.String(),
		"serve.addr":                DefaultServeAddr,
	}
}

// Load merges configuration sources and validates the result.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// flags may be nil; only flags that were explicitly set are applied.
func Load(cfgFile string, flags *pflag.FlagSet) (*Loaded, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := FindConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment (CORESYNC_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if len(cfg.Cores) == 0 {
		cfg.Cores = DefaultCores()
	}

	if err := cfg.Validate(); err != nil {
		if used != "" {
			return nil, fmt.Errorf("%s: %w", used, err)
		}
		return nil, err
	}
	return &Loaded{Config: &cfg, File: used}, nil
}
