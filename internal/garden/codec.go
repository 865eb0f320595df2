package garden

import (
	"context"
	"encoding/json"
	"fmt"
)

// Persisted keys, one JSON document each.
const (
	KeyProfile     = "user_profile"
	KeyGarden      = "my_garden"
	KeyReminders   = "care_reminders"
	KeyCompletions = "task_completions"
	KeyFavorites   = "favorites"
)

// decode reads key from the store. A missing key yields the zero value and
// a malformed document is logged and discarded; only store failures are
// errors.
func decode[T any](ctx context.Context, s *Service, key string) (T, error) {
	var zero T
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.log.Warn("Discarding malformed persisted data", "key", key, "error", err)
		return zero, nil
	}
	return v, nil
}

// doc is one document to persist.
type doc struct {
	key   string
	value any
}

// flush writes docs to the store, in order. Callers hold s.mu and commit
// the values to s only once flush succeeds, so a failed write leaves the
// in-memory state untouched.
func (s *Service) flush(ctx context.Context, docs ...doc) error {
	for _, d := range docs {
		b, err := json.Marshal(d.value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", d.key, err)
		}
		if err := s.store.Set(ctx, d.key, string(b)); err != nil {
			return fmt.Errorf("failed to persist %s: %w", d.key, err)
		}
	}
	return nil
}
