package notify

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/conorfennell/leafcare/internal/metrics"
)

// Dispatch outcomes, also used as metric labels.
const (
	Sent      = "sent"
	Duplicate = "duplicate"
	Failed    = "failed"
)

// Dispatcher sends each notification key at most once per calendar day and
// paces delivery. It is safe for concurrent use.
type Dispatcher struct {
	notifier Notifier
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	log      *slog.Logger

	mu   sync.Mutex
	day  string
	sent map[string]bool
}

// NewDispatcher wraps n. ratePerSec <= 0 disables pacing.
func NewDispatcher(n Notifier, ratePerSec float64, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	limit, burst := rate.Inf, 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = max(1, int(ratePerSec))
	}
	return &Dispatcher{
		notifier: n,
		limiter:  rate.NewLimiter(limit, burst),
		metrics:  m,
		log:      log.With("component", "dispatcher"),
		sent:     map[string]bool{},
	}
}

// Dispatch delivers n unless its key was already delivered on day. A failed
// delivery is not remembered, so the next check retries it.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification, day string) (string, error) {
	if !d.claim(n.Key, day) {
		d.metrics.Notification(Duplicate)
		return Duplicate, nil
	}

	err := d.limiter.Wait(ctx)
	if err == nil {
		err = d.notifier.Notify(ctx, n)
	}
	if err != nil {
		d.release(n.Key, day)
		d.metrics.Notification(Failed)
		d.log.Warn("Notification failed", "key", n.Key, "error", err)
		return Failed, err
	}
	d.metrics.Notification(Sent)
	return Sent, nil
}

// claim marks key as sent for day, reporting false if it already was.
// Keys from earlier days are forgotten when the day rolls over.
func (d *Dispatcher) claim(key, day string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if day != d.day {
		d.day = day
		d.sent = map[string]bool{}
	}
	if d.sent[key] {
		return false
	}
	d.sent[key] = true
	return true
}

func (d *Dispatcher) release(key, day string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if day == d.day {
		delete(d.sent, key)
	}
}
