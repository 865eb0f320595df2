package care

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/leafcare/internal/domain"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func fixture() ([]domain.Reminder, []domain.Plant) {
	reminders := []domain.Reminder{
		{ID: "r1", PlantID: "p1", Type: domain.Water, Frequency: domain.Daily, Time: "09:00"},
		{ID: "r2", PlantID: "p1", Type: domain.Mist, Frequency: domain.Weekly, Time: "10:00"},
		{ID: "r3", PlantID: "p2", Type: domain.Water, Frequency: domain.Daily, Time: "09:00"},
	}
	plants := []domain.Plant{
		{ID: "p1", Name: "Monstera", Image: "https://img/p1.jpg"},
		{ID: "p2", Name: "Fern"},
	}
	return reminders, plants
}

func TestListDueTasks(t *testing.T) {
	reminders, plants := fixture()

	t.Run("handled today is excluded", func(t *testing.T) {
		rs := append([]domain.Reminder(nil), reminders...)
		for i := range rs {
			rs[i].LastNotificationDate = "2024-01-01"
		}
		assert.Empty(t, ListDueTasks(rs, plants, "2024-01-01"))
	})

	t.Run("handled yesterday is due again", func(t *testing.T) {
		rs := []domain.Reminder{{ID: "r1", PlantID: "p1", Type: domain.Water, LastNotificationDate: "2023-12-31"}}
		due := ListDueTasks(rs, plants, "2024-01-01")
		require.Len(t, due, 1)
		assert.Equal(t, "Monstera", due[0].PlantName)
		assert.Equal(t, "https://img/p1.jpg", due[0].PlantImage)
	})

	t.Run("dangling plant gets placeholder", func(t *testing.T) {
		rs := []domain.Reminder{{ID: "r9", PlantID: "gone", Type: domain.Prune}}
		due := ListDueTasks(rs, plants, "2024-01-01")
		require.Len(t, due, 1)
		assert.Equal(t, UnknownPlantName, due[0].PlantName)
		assert.Empty(t, due[0].PlantImage)
	})

	t.Run("empty inputs", func(t *testing.T) {
		due := ListDueTasks(nil, nil, "2024-01-01")
		assert.NotNil(t, due)
		assert.Empty(t, due)
	})

	t.Run("order follows reminders", func(t *testing.T) {
		due := ListDueTasks(reminders, plants, "2024-01-01")
		require.Len(t, due, 3)
		assert.Equal(t, []string{"r1", "r2", "r3"}, []string{due[0].ReminderID, due[1].ReminderID, due[2].ReminderID})
	})
}

func TestCompleteTask(t *testing.T) {
	reminders, plants := fixture()
	now := at("2024-01-01T09:00:00Z")

	completions, nextReminders, nextPlants := CompleteTask(nil, reminders, plants, "p1", domain.Water, now)

	t.Run("history is prepended", func(t *testing.T) {
		require.Len(t, completions["p1"], 1)
		assert.Equal(t, domain.CompletionRecord{Type: domain.Water, Timestamp: now}, completions["p1"][0])
		assert.Empty(t, completions["p2"])
	})

	t.Run("matching reminders are handled", func(t *testing.T) {
		assert.Equal(t, "2024-01-01", nextReminders[0].LastNotificationDate)
		assert.Empty(t, nextReminders[1].LastNotificationDate, "other type on same plant untouched")
		assert.Empty(t, nextReminders[2].LastNotificationDate, "same type on other plant untouched")
	})

	t.Run("plant last care is stamped", func(t *testing.T) {
		assert.Equal(t, now, nextPlants[0].LastCare[domain.Water])
		assert.Empty(t, nextPlants[1].LastCare)
	})

	t.Run("inputs are not mutated", func(t *testing.T) {
		assert.Empty(t, reminders[0].LastNotificationDate)
		assert.Nil(t, plants[0].LastCare)
	})

	t.Run("no reminders and no plant still logs", func(t *testing.T) {
		c, r, p := CompleteTask(domain.Completions{}, nil, nil, "ghost", domain.Repot, now)
		require.Len(t, c["ghost"], 1)
		assert.Empty(t, r)
		assert.Empty(t, p)
	})
}

func TestCompleteTaskThenDue(t *testing.T) {
	reminders, plants := fixture()
	now := at("2024-01-01T09:00:00Z")
	today := CalendarDate(now)

	before := ListDueTasks(reminders, plants, today)
	require.Len(t, before, 3)

	_, nextReminders, _ := CompleteTask(nil, reminders, plants, "p1", domain.Water, now)
	after := ListDueTasks(nextReminders, plants, today)

	for _, task := range after {
		assert.False(t, task.PlantID == "p1" && task.Type == domain.Water, "p1 Water should not be due")
	}
	assert.Len(t, after, 2)
	assert.Equal(t, before[1], after[0])
	assert.Equal(t, before[2], after[1])
}

func TestCompleteTaskHistoryCap(t *testing.T) {
	start := at("2024-01-01T00:00:00Z")
	var completions domain.Completions
	for i := 0; i < 60; i++ {
		completions, _, _ = CompleteTask(completions, nil, nil, "p1", domain.Water, start.Add(time.Duration(i)*time.Hour))
	}

	history := completions["p1"]
	require.Len(t, history, MaxCompletionsPerPlant)
	assert.Equal(t, start.Add(59*time.Hour), history[0].Timestamp, "most recent first")
	assert.Equal(t, start.Add(10*time.Hour), history[49].Timestamp, "oldest ten dropped")
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].Timestamp.After(history[i].Timestamp))
	}
}

func TestRemovePlant(t *testing.T) {
	reminders, _ := fixture()

	t.Run("removes only that plant", func(t *testing.T) {
		kept := RemovePlant(reminders, "p1")
		require.Len(t, kept, 1)
		assert.Equal(t, "r3", kept[0].ID)
		assert.Len(t, reminders, 3)
	})

	t.Run("unknown plant is a no-op", func(t *testing.T) {
		assert.Equal(t, reminders, RemovePlant(reminders, "nope"))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, RemovePlant(nil, "p1"))
	})
}

// Removing a plant keeps its completion log unless purging is requested.
// The default leaks history for deleted plants; this pins that behaviour.
func TestHistoryAfterPlantRemoval_KnownLimitation(t *testing.T) {
	completions := domain.Completions{
		"p1": {{Type: domain.Water, Timestamp: at("2024-01-01T09:00:00Z")}},
		"p2": {{Type: domain.Mist, Timestamp: at("2024-01-01T09:00:00Z")}},
	}

	kept := HistoryAfterPlantRemoval(completions, "p1", false)
	assert.Contains(t, kept, "p1")

	purged := HistoryAfterPlantRemoval(completions, "p1", true)
	assert.NotContains(t, purged, "p1")
	assert.Contains(t, purged, "p2")
	assert.Contains(t, completions, "p1", "input untouched")
}

func TestDedupeReminders(t *testing.T) {
	in := []domain.Reminder{
		{ID: "a", PlantID: "p1", Type: domain.Water},
		{ID: "b", PlantID: "p1", Type: domain.Water},
		{ID: "c", PlantID: "p1", Type: domain.Mist},
		{ID: "d", PlantID: "p2", Type: domain.Water},
	}
	out := DedupeReminders(in)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
	assert.Equal(t, "d", out[2].ID)
}

func TestComputeActivityGrid(t *testing.T) {
	now := at("2024-01-14T18:00:00Z")

	testCases := []struct {
		name    string
		records int
	}{
		{name: "empty history", records: 0},
		{name: "single record", records: 1},
		{name: "large history", records: 200},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			completions := domain.Completions{}
			for i := 0; i < tc.records; i++ {
				completions["p1"] = append(completions["p1"], domain.CompletionRecord{
					Type:      domain.Water,
					Timestamp: now.Add(-time.Duration(i) * 6 * time.Hour),
				})
			}
			grid := ComputeActivityGrid("p1", completions, ActivityWindowDays, now)
			require.Len(t, grid, ActivityWindowDays)
			assert.Equal(t, "2024-01-01", grid[0].Date)
			assert.Equal(t, "2024-01-14", grid[13].Date)
		})
	}

	t.Run("first record in list order wins the day", func(t *testing.T) {
		completions := domain.Completions{"p1": {
			{Type: domain.Mist, Timestamp: at("2024-01-14T07:00:00Z")},
			{Type: domain.Water, Timestamp: at("2024-01-14T12:00:00Z")},
			{Type: domain.Prune, Timestamp: at("2024-01-10T12:00:00Z")},
		}}
		grid := ComputeActivityGrid("p1", completions, ActivityWindowDays, now)
		assert.Equal(t, domain.DaySummary{Date: "2024-01-14", Done: true, Type: domain.Mist}, grid[13])
		assert.Equal(t, domain.DaySummary{Date: "2024-01-10", Done: true, Type: domain.Prune}, grid[9])
		assert.Equal(t, domain.DaySummary{Date: "2024-01-11"}, grid[10])
	})

	t.Run("other plants are ignored", func(t *testing.T) {
		completions := domain.Completions{"p2": {{Type: domain.Water, Timestamp: now}}}
		for _, cell := range ComputeActivityGrid("p1", completions, ActivityWindowDays, now) {
			assert.False(t, cell.Done)
		}
	})

	t.Run("non-positive window", func(t *testing.T) {
		assert.Empty(t, ComputeActivityGrid("p1", nil, 0, now))
	})

	t.Run("dates follow now's location", func(t *testing.T) {
		loc := time.FixedZone("UTC+10", 10*60*60)
		local := at("2024-01-14T20:00:00Z").In(loc) // 2024-01-15 06:00 local
		completions := domain.Completions{"p1": {{Type: domain.Water, Timestamp: at("2024-01-14T20:00:00Z")}}}
		grid := ComputeActivityGrid("p1", completions, 3, local)
		assert.Equal(t, domain.DaySummary{Date: "2024-01-15", Done: true, Type: domain.Water}, grid[2])
	})
}

func TestRelativeCareLabel(t *testing.T) {
	now := at("2024-01-10T10:00:00Z")

	testCases := []struct {
		name string
		last time.Time
		want string
	}{
		{name: "same instant", last: now, want: "Today"},
		{name: "earlier today", last: at("2024-01-10T00:30:00Z"), want: "Today"},
		{name: "25 hours ago", last: at("2024-01-09T09:00:00Z"), want: "Yesterday"},
		{name: "late yesterday", last: at("2024-01-09T23:00:00Z"), want: "Yesterday"},
		{name: "two days", last: at("2024-01-08T10:00:00Z"), want: "2d ago"},
		{name: "floor of elapsed days", last: at("2024-01-07T08:00:00Z"), want: "3d ago"},
		{name: "two calendar days back but under 48 hours", last: at("2024-01-08T23:00:00Z"), want: "1d ago"},
		{name: "a month", last: at("2023-12-11T10:00:00Z"), want: "30d ago"},
		{name: "future timestamp", last: at("2024-01-12T10:00:00Z"), want: "Today"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := RelativeCareLabel(tc.last, now)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("no timestamp", func(t *testing.T) {
		got, ok := RelativeCareLabel(time.Time{}, now)
		assert.False(t, ok)
		assert.Empty(t, got)
	})
}

// Frequency is not consulted when deciding what is due, so a Weekly reminder
// handled yesterday is due again today just like a Daily one. Kept as observed
// until the intended recurrence rules are settled.
func TestListDueTasks_FrequencyIgnored_KnownLimitation(t *testing.T) {
	plants := []domain.Plant{{ID: "p1", Name: "Monstera"}}
	for _, f := range []domain.Frequency{domain.Daily, domain.Weekly, domain.Biweekly, domain.Monthly} {
		t.Run(string(f), func(t *testing.T) {
			rs := []domain.Reminder{{ID: "r", PlantID: "p1", Type: domain.Water, Frequency: f, LastNotificationDate: "2024-01-09"}}
			assert.Len(t, ListDueTasks(rs, plants, "2024-01-10"), 1, fmt.Sprintf("%s reminder due the next day", f))
		})
	}
}

func TestScenario(t *testing.T) {
	reminders := []domain.Reminder{{ID: "r1", PlantID: "p1", Type: domain.Water, LastNotificationDate: ""}}
	plants := []domain.Plant{{ID: "p1", Name: "Pothos"}}

	due := ListDueTasks(reminders, plants, "2024-01-01")
	require.Len(t, due, 1)
	assert.Equal(t, "p1", due[0].PlantID)
	assert.Equal(t, domain.Water, due[0].Type)

	_, reminders, _ = CompleteTask(nil, reminders, plants, "p1", domain.Water, at("2024-01-01T09:00:00Z"))
	assert.Empty(t, ListDueTasks(reminders, plants, "2024-01-01"))
}
