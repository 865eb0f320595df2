package domain

// Frequency describes how often a reminder is meant to recur.
// It is stored and displayed but does not drive due computation.
type Frequency string

const (
	Daily    Frequency = "Daily"
	Weekly   Frequency = "Weekly"
	Biweekly Frequency = "Bi-weekly"
	Monthly  Frequency = "Monthly"
)

// Reminder is a recurring care task for one plant and one task type.
// LastNotificationDate is the calendar date (YYYY-MM-DD) the reminder was
// last handled; empty means never.
type Reminder struct {
	ID                   string    `json:"id"`
	PlantID              string    `json:"plantId"`
	Type                 TaskType  `json:"type"`
	Frequency            Frequency `json:"frequency"`
	Time                 string    `json:"time"`
	LastNotificationDate string    `json:"lastNotificationDate"`
}

// NewReminder is the payload used to create or update a reminder.
type NewReminder struct {
	PlantID   string    `json:"plantId" validate:"required"`
	Type      TaskType  `json:"type" validate:"required,oneof=Water Fertilize Prune Mist Repot Clean"`
	Frequency Frequency `json:"frequency" validate:"required,oneof=Daily Weekly Bi-weekly Monthly"`
	Time      string    `json:"time" validate:"required,clock"`
}

// DueTask is a reminder not yet handled today, enriched for display.
type DueTask struct {
	ReminderID string    `json:"reminderId"`
	PlantID    string    `json:"plantId"`
	PlantName  string    `json:"plantName"`
	PlantImage string    `json:"plantImage,omitempty"`
	Type       TaskType  `json:"type"`
	Frequency  Frequency `json:"frequency"`
	Time       string    `json:"time"`
}
