// Package config loads leafcare settings from defaults, an optional YAML
// file, LEAFCARE_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/leafcare/internal/catalog"
	"github.com/conorfennell/leafcare/internal/identify"
	"github.com/conorfennell/leafcare/internal/notify"
	"github.com/conorfennell/leafcare/internal/storage"
	"github.com/conorfennell/leafcare/internal/wiki"
)

const (
	EnvPrefix = "LEAFCARE_"
	// ConfigFlag names the flag holding the YAML file path.
	ConfigFlag = "config"
)

type HTTP struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type Garden struct {
	// PurgeHistoryOnRemove deletes a plant's completion log when the plant
	// is removed. Off by default: history outlives the plant.
	PurgeHistoryOnRemove bool `koanf:"purge_history_on_remove"`
}

// Config is the full application configuration.
type Config struct {
	HTTP     HTTP   `koanf:"http"`
	Log      Log    `koanf:"log"`
	Timezone string `koanf:"timezone"`

	Storage storage.Config  `koanf:"storage"`
	AI      identify.Config `koanf:"ai"`
	Wiki    wiki.Config     `koanf:"wiki"`
	Notify  notify.Config   `koanf:"notify"`
	Catalog catalog.Config  `koanf:"catalog"`
	Garden  Garden          `koanf:"garden"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTP:     HTTP{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:      Log{Level: "info", Format: "text"},
		Timezone: "Local",
		Storage: storage.Config{
			Driver:      "sqlite",
			Path:        "leafcare.db",
			Prefix:      "leafcare:",
			BusyTimeout: 5 * time.Second,
		},
		AI: identify.Config{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Timeout:     60 * time.Second,
			RatePerSec:  1,
			MaxAttempts: 3,
			BackoffBase: time.Second,
		},
		Wiki: wiki.Config{
			Endpoint:    wiki.DefaultEndpoint,
			ThumbSize:   500,
			Timeout:     10 * time.Second,
			RatePerSec:  5,
			UserAgent:   "leafcare/1.0",
			Concurrency: 4,
			Limit:       4,
		},
		Notify: notify.Config{
			Driver:        "log",
			CheckSchedule: "@every 1m",
			RatePerSec:    1,
		},
		Catalog: catalog.Config{
			ReposDir:     "repos",
			Pattern:      catalog.DefaultPattern,
			SyncSchedule: "@every 6h",
		},
	}
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(ConfigFlag, "", "Path to a YAML config file")
	fs.String("http.addr", d.HTTP.Addr, "HTTP listen address")
	fs.String("log.level", d.Log.Level, "Log level (debug, info, warn, error)")
	fs.String("log.format", d.Log.Format, "Log format (text, json)")
	fs.String("timezone", d.Timezone, "IANA time zone used for calendar dates")
	fs.String("storage.driver", d.Storage.Driver, "Storage driver (memory, sqlite, valkey)")
	fs.String("storage.path", d.Storage.Path, "Path to the SQLite database file")
	fs.String("storage.address", d.Storage.Address, "Valkey address")
	fs.String("notify.driver", d.Notify.Driver, "Notification driver (none, log, telegram)")
	fs.StringSlice("catalog.sources", nil, "Care-guide sources (directories or git URLs)")
	fs.Bool("catalog.watch", false, "Resync the catalog when local sources change")
}

// Load layers defaults, the YAML file named by the config flag, the
// environment and explicitly set flags, then validates the result.
// fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	path := ""
	if fs != nil {
		if f := fs.Lookup(ConfigFlag); f != nil {
			path = f.Value.String()
		}
	}
	return LoadFile(path, fs)
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		// Only flags the user set; defaults come from Default().
		if err := k.Load(posflag.Provider(fs, ".", nil), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
		k.Delete(ConfigFlag)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps LEAFCARE_AI__API_KEY to ai.api_key. Comma-separated lists
// become slices.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "catalog.sources" {
		var out []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return key, out
	}
	return key, value
}

// Validate checks field constraints and that Timezone resolves.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves Timezone. Empty and "Local" mean the host's zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
