package domain

import "time"

// Severity grades a health diagnosis.
type Severity string

const (
	Healthy  Severity = "Healthy"
	Warning  Severity = "Warning"
	Critical Severity = "Critical"
)

// CareGuide is the care advice returned with an identification.
type CareGuide struct {
	Watering    string `json:"watering" yaml:"watering"`
	Light       string `json:"light" yaml:"light"`
	Temperature string `json:"temperature" yaml:"temperature"`
	Humidity    string `json:"humidity" yaml:"humidity"`
	Soil        string `json:"soil" yaml:"soil"`
	Fertilizer  string `json:"fertilizer" yaml:"fertilizer"`
	Pruning     string `json:"pruning" yaml:"pruning"`
	Repotting   string `json:"repotting" yaml:"repotting"`
}

// Problem is a common problem for a species.
type Problem struct {
	Name     string `json:"name"`
	Symptoms string `json:"symptoms"`
	Solution string `json:"solution"`
}

// SimilarPlant is a look-alike suggestion.
type SimilarPlant struct {
	Name           string `json:"name"`
	ScientificName string `json:"scientificName"`
	Difference     string `json:"difference"`
	Image          string `json:"image,omitempty"`
}

// Identification is the structured result of identifying a plant.
type Identification struct {
	CommonName     string         `json:"commonName"`
	ScientificName string         `json:"scientificName"`
	Family         string         `json:"family"`
	Genus          string         `json:"genus"`
	Description    string         `json:"description"`
	Confidence     float64        `json:"confidence"`
	Care           CareGuide      `json:"care"`
	CommonProblems []Problem      `json:"commonProblems"`
	SimilarPlants  []SimilarPlant `json:"similarPlants"`
	Images         []string       `json:"images,omitempty"`
	CatalogEntry   string         `json:"catalogEntry,omitempty"`
}

// Issue is one finding of a diagnosis.
type Issue struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Treatment   string `json:"treatment"`
}

// Diagnosis is the structured result of a health check.
type Diagnosis struct {
	Status          Severity `json:"status"`
	Summary         string   `json:"summary"`
	Issues          []Issue  `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// ChatMessage is one turn of a plant-care conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// UserProfile is the single local user.
type UserProfile struct {
	Name       string    `json:"name" validate:"max=80"`
	Location   string    `json:"location" validate:"max=120"`
	Experience string    `json:"experience" validate:"omitempty,oneof=beginner intermediate expert"`
	Avatar     string    `json:"avatar" validate:"omitempty,url"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Favorite is a bookmarked identification.
type Favorite struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required,max=120"`
	ScientificName string          `json:"scientificName"`
	Image          string          `json:"image"`
	SavedAt        time.Time       `json:"savedAt"`
	Identification *Identification `json:"identification,omitempty"`
}
