package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/conorfennell/leafcare/internal/care"
	"github.com/conorfennell/leafcare/internal/catalog"
	"github.com/conorfennell/leafcare/internal/domain"
	"github.com/conorfennell/leafcare/internal/metrics"
	"github.com/conorfennell/leafcare/internal/notify"
)

// DueLister is the read side of the garden the due check needs.
type DueLister interface {
	DueTasks(now time.Time) []domain.DueTask
}

// Dispatcher delivers one notification per key per day.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification, day string) (string, error)
}

// CatalogSyncer resyncs the care-guide catalog.
type CatalogSyncer interface {
	Sync(ctx context.Context) (catalog.SyncStats, error)
}

// Message renders the reminder text for a due task.
func Message(t domain.DueTask) notify.Notification {
	return notify.Notification{
		Key:   t.ReminderID,
		Title: fmt.Sprintf("Time to %s your %s", strings.ToLower(string(t.Type)), t.PlantName),
		Body:  fmt.Sprintf("%s reminder, set for %s", t.Frequency, t.Time),
	}
}

// DueCheck lists the tasks due now and dispatches a notification for each.
// It only reads garden state, so it may run alongside completions.
func DueCheck(garden DueLister, d Dispatcher, clock func() time.Time, m *metrics.Metrics, log *slog.Logger) Job {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context) error {
		now := clock()
		due := garden.DueTasks(now)
		m.SetDueTasks(len(due))
		day := care.CalendarDate(now)

		var errs []error
		sent := 0
		for _, t := range due {
			res, err := d.Dispatch(ctx, Message(t), day)
			if err != nil {
				errs = append(errs, fmt.Errorf("reminder %s: %w", t.ReminderID, err))
				continue
			}
			if res == notify.Sent {
				sent++
			}
		}
		if sent > 0 {
			log.Info("Reminders sent", "due", len(due), "sent", sent)
		}
		return errors.Join(errs...)
	}
}

// CatalogSync resyncs the catalog and records the outcome.
func CatalogSync(c CatalogSyncer, m *metrics.Metrics) Job {
	return func(ctx context.Context) error {
		stats, err := c.Sync(ctx)
		m.CatalogSynced(stats.Entries, err)
		return err
	}
}
