package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leafcare.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(flags(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "@every 1m", cfg.Notify.CheckSchedule)
	assert.False(t, cfg.Garden.PurgeHistoryOnRemove)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
http:
  addr: 127.0.0.1:9000
timezone: Europe/Dublin
storage:
  driver: memory
ai:
  api_key: sk-test
  timeout: 15s
notify:
  driver: none
  telegram:
    chat_id: 42
catalog:
  sources:
    - ./guides
    - https://example.com/guides.git
garden:
  purge_history_on_remove: true
`)
	cfg, err := Load(flags(t, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "Europe/Dublin", cfg.Timezone)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "leafcare.db", cfg.Storage.Path, "unset keys keep defaults")
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, 15*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, int64(42), cfg.Notify.Telegram.ChatID)
	assert.Equal(t, []string{"./guides", "https://example.com/guides.git"}, cfg.Catalog.Sources)
	assert.True(t, cfg.Garden.PurgeHistoryOnRemove)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Dublin", loc.String())
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":7000"
log:
  level: warn
storage:
  path: file.db
`)
	t.Setenv("LEAFCARE_LOG__LEVEL", "debug")
	t.Setenv("LEAFCARE_STORAGE__PATH", "env.db")
	t.Setenv("LEAFCARE_AI__MAX_ATTEMPTS", "5")
	t.Setenv("LEAFCARE_CATALOG__SOURCES", "a, b,,c")

	cfg, err := Load(flags(t, "--config", path, "--storage.path", "flag.db"))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr, "file over default")
	assert.Equal(t, "debug", cfg.Log.Level, "env over file")
	assert.Equal(t, "flag.db", cfg.Storage.Path, "flag over env")
	assert.Equal(t, 5, cfg.AI.MaxAttempts)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Catalog.Sources)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{name: "log level", yaml: "log:\n  level: loud\n"},
		{name: "storage driver", yaml: "storage:\n  driver: postgres\n"},
		{name: "valkey without address", yaml: "storage:\n  driver: valkey\n"},
		{name: "notify driver", yaml: "notify:\n  driver: pigeon\n"},
		{name: "time zone", yaml: "timezone: Mars/Olympus\n"},
		{name: "empty model", yaml: "ai:\n  model: \"\"\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tc.yaml), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	key, val := envKey("LEAFCARE_NOTIFY__TELEGRAM__CHAT_ID", "42")
	assert.Equal(t, "notify.telegram.chat_id", key)
	assert.Equal(t, "42", val)

	key, val = envKey("LEAFCARE_TIMEZONE", "UTC")
	assert.Equal(t, "timezone", key)
	assert.Equal(t, "UTC", val)
}
