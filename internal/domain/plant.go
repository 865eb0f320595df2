package domain

import "time"

// TaskType is a care action that can be scheduled and logged.
type TaskType string

const (
	Water     TaskType = "Water"
	Fertilize TaskType = "Fertilize"
	Prune     TaskType = "Prune"
	Mist      TaskType = "Mist"
	Repot     TaskType = "Repot"
	Clean     TaskType = "Clean"
)

// TaskTypes lists every care action in display order.
var TaskTypes = []TaskType{Water, Fertilize, Prune, Mist, Repot, Clean}

// Valid reports whether t is one of the known care actions.
func (t TaskType) Valid() bool {
	for _, known := range TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Plant is a plant the user committed to their garden.
// LastCare holds, per task type, the instant that task was last completed.
type Plant struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Species        string                 `json:"species"`
	Image          string                 `json:"image"`
	AddedAt        time.Time              `json:"addedAt"`
	LastCare       map[TaskType]time.Time `json:"lastCare,omitempty"`
	Identification *Identification        `json:"identification,omitempty"`
}

// NewPlant is the payload used to add a plant to the garden.
type NewPlant struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Species        string          `json:"species" validate:"max=200"`
	Image          string          `json:"image" validate:"omitempty,url"`
	Identification *Identification `json:"identification,omitempty"`
}

// CompletionRecord records that a care task was performed.
type CompletionRecord struct {
	Type      TaskType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Completions maps a plant id to its completion log, most recent first.
type Completions map[string][]CompletionRecord

// DaySummary is one cell of the activity grid.
// Type is empty when Done is false.
type DaySummary struct {
	Date string   `json:"date"`
	Done bool     `json:"done"`
	Type TaskType `json:"type,omitempty"`
}
