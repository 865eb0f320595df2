package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// Valkey is a Store backed by a valkey (or redis) server.
// Keys are namespaced with prefix.
type Valkey struct {
	client valkey.Client
	prefix string
}

// OpenValkey connects to the server at address and selects db.
func OpenValkey(address string, db int, prefix string) (*Valkey, error) {
	if address == "" {
		return nil, errors.New("valkey address is required")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{address},
		SelectDB:    db,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	return &Valkey{client: client, prefix: prefix}, nil
}

func (v *Valkey) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := v.client.Do(ctx, v.client.B().Get().Key(v.prefix+key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

func (v *Valkey) Set(ctx context.Context, key, value string) error {
	if err := v.client.Do(ctx, v.client.B().Set().Key(v.prefix+key).Value(value).Build()).Error(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (v *Valkey) Delete(ctx context.Context, key string) error {
	if err := v.client.Do(ctx, v.client.B().Del().Key(v.prefix+key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
