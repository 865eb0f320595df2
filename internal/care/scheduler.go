package care

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/conorfennell/leafcare/internal/domain"
)

const (
	// MaxCompletionsPerPlant caps the completion log kept for each plant.
	MaxCompletionsPerPlant = 50
	// ActivityWindowDays is the default length of the activity grid.
	ActivityWindowDays = 14
	// UnknownPlantName labels due tasks whose plant no longer exists.
	UnknownPlantName = "Unknown Plant"
	// DateLayout renders calendar dates.
	DateLayout = "2006-01-02"
)

// CalendarDate renders t as a calendar date in t's own location.
func CalendarDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ListDueTasks returns a DueTask for every reminder not yet handled on today.
// Frequency is not consulted: a handled reminder becomes due again on the next
// calendar date whatever its declared frequency.
func ListDueTasks(reminders []domain.Reminder, plants []domain.Plant, today string) []domain.DueTask {
	byID := make(map[string]domain.Plant, len(plants))
	for _, p := range plants {
		byID[p.ID] = p
	}

	due := []domain.DueTask{}
	for _, r := range reminders {
		if r.LastNotificationDate == today {
			continue
		}
		task := domain.DueTask{
			ReminderID: r.ID,
			PlantID:    r.PlantID,
			PlantName:  UnknownPlantName,
			Type:       r.Type,
			Frequency:  r.Frequency,
			Time:       r.Time,
		}
		if p, ok := byID[r.PlantID]; ok {
			task.PlantName = p.Name
			task.PlantImage = p.Image
		}
		due = append(due, task)
	}
	return due
}

// CompleteTask records that task was performed on plantID at now and returns
// updated copies of the three collections. Inputs are never mutated.
// A plant with no matching reminders, or no plant record at all, still gets
// its completion logged.
func CompleteTask(
	completions domain.Completions,
	reminders []domain.Reminder,
	plants []domain.Plant,
	plantID string,
	task domain.TaskType,
	now time.Time,
) (domain.Completions, []domain.Reminder, []domain.Plant) {
	// 1. Prepend to the plant's history and cap it.
	nextCompletions := make(domain.Completions, len(completions)+1)
	maps.Copy(nextCompletions, completions)
	prev := completions[plantID]
	history := make([]domain.CompletionRecord, 0, min(len(prev)+1, MaxCompletionsPerPlant))
	history = append(history, domain.CompletionRecord{Type: task, Timestamp: now})
	for _, rec := range prev {
		if len(history) == MaxCompletionsPerPlant {
			break
		}
		history = append(history, rec)
	}
	nextCompletions[plantID] = history

	// 2. Mark matching reminders handled for the day.
	today := CalendarDate(now)
	nextReminders := slices.Clone(reminders)
	for i := range nextReminders {
		if nextReminders[i].PlantID == plantID && nextReminders[i].Type == task {
			nextReminders[i].LastNotificationDate = today
		}
	}

	// 3. Stamp the plant's last-care map.
	nextPlants := slices.Clone(plants)
	for i := range nextPlants {
		if nextPlants[i].ID != plantID {
			continue
		}
		lastCare := make(map[domain.TaskType]time.Time, len(nextPlants[i].LastCare)+1)
		maps.Copy(lastCare, nextPlants[i].LastCare)
		lastCare[task] = now
		nextPlants[i].LastCare = lastCare
	}

	return nextCompletions, nextReminders, nextPlants
}

// RemovePlant drops every reminder attached to plantID.
func RemovePlant(reminders []domain.Reminder, plantID string) []domain.Reminder {
	kept := make([]domain.Reminder, 0, len(reminders))
	for _, r := range reminders {
		if r.PlantID != plantID {
			kept = append(kept, r)
		}
	}
	return kept
}

// HistoryAfterPlantRemoval decides what happens to a removed plant's
// completion log. Without purge the log is kept, which leaks history for
// plants that no longer exist.
func HistoryAfterPlantRemoval(completions domain.Completions, plantID string, purge bool) domain.Completions {
	if !purge {
		return completions
	}
	return PurgeHistory(completions, plantID)
}

// PurgeHistory returns completions without plantID's log.
func PurgeHistory(completions domain.Completions, plantID string) domain.Completions {
	next := make(domain.Completions, len(completions))
	for id, recs := range completions {
		if id != plantID {
			next[id] = recs
		}
	}
	return next
}

// DedupeReminders keeps the first reminder for each (plant, type) pair.
func DedupeReminders(reminders []domain.Reminder) []domain.Reminder {
	type pair struct {
		plantID string
		task    domain.TaskType
	}
	seen := make(map[pair]bool, len(reminders))
	out := make([]domain.Reminder, 0, len(reminders))
	for _, r := range reminders {
		k := pair{r.PlantID, r.Type}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// ComputeActivityGrid summarizes the last windowDays calendar days of
// plantID's history, oldest first. When several records share a day the
// first one in list order wins.
func ComputeActivityGrid(plantID string, completions domain.Completions, windowDays int, now time.Time) []domain.DaySummary {
	if windowDays <= 0 {
		return []domain.DaySummary{}
	}

	loc := now.Location()
	firstByDate := make(map[string]domain.TaskType)
	for _, rec := range completions[plantID] {
		d := CalendarDate(rec.Timestamp.In(loc))
		if _, ok := firstByDate[d]; !ok {
			firstByDate[d] = rec.Type
		}
	}

	grid := make([]domain.DaySummary, 0, windowDays)
	// Noon avoids DST transitions shifting the date.
	y, m, d := now.Date()
	for i := windowDays - 1; i >= 0; i-- {
		day := CalendarDate(time.Date(y, m, d-i, 12, 0, 0, 0, loc))
		cell := domain.DaySummary{Date: day}
		if t, ok := firstByDate[day]; ok {
			cell.Done = true
			cell.Type = t
		}
		grid = append(grid, cell)
	}
	return grid
}

// RelativeCareLabel describes how long ago last was, relative to now.
// It returns false when no timestamp has been recorded.
//
// "Today" and "Yesterday" follow calendar dates. Older labels count whole
// elapsed 24-hour periods, so a timestamp two dates back but under 48 hours
// old reads "1d ago".
func RelativeCareLabel(last, now time.Time) (string, bool) {
	if last.IsZero() {
		return "", false
	}
	last = last.In(now.Location())

	switch daysBetween(last, now) {
	case 0:
		return "Today", true
	case 1:
		return "Yesterday", true
	}
	if last.After(now) {
		return "Today", true
	}
	n := int(now.Sub(last).Hours() / 24)
	return fmt.Sprintf("%dd ago", n), true
}

// daysBetween counts calendar-date boundaries from a to b in b's location.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 12, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 12, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
