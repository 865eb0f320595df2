// Package storage provides the string-keyed blob store the garden state is
// persisted to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store is a generic key-value persistence port. Values are opaque strings.
type Store interface {
	// Get returns the stored value and true, or "" and false if key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver      string        `koanf:"driver" validate:"required,oneof=memory sqlite valkey"`
	Path        string        `koanf:"path" validate:"required_if=Driver sqlite"`
	Address     string        `koanf:"address" validate:"required_if=Driver valkey"`
	DB          int           `koanf:"db" validate:"gte=0"`
	Prefix      string        `koanf:"prefix"`
	BusyTimeout time.Duration `koanf:"busy_timeout"`
}

// Open initializes the configured store.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "memory", "":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return OpenSQLite(cfg.Path, cfg.BusyTimeout)
	case "valkey":
		return OpenValkey(cfg.Address, cfg.DB, cfg.Prefix)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}
