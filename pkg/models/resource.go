package models

import (
	"time"

	"github.com/google/uuid"
)

// Fixed category lists for one-hot encoding. Order matters: vector slots are
// assigned by position, with a trailing "unknown" slot per list.
var (
	Difficulties   = []string{"beginner", "intermediate", "advanced"}
	MediaTypes     = []string{"video", "article", "course", "book", "podcast", "interactive"}
	LearningStyles = []string{"visual", "auditory", "kinesthetic", "reading"}
)

type Resource struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Title           string    `json:"title" db:"title" validate:"required,min=1,max=255"`
	Description     string    `json:"description,omitempty" db:"description"`
	URL             string    `json:"url" db:"url"`
	MediaType       string    `json:"media_type" db:"media_type"`
	Difficulty      string    `json:"difficulty" db:"difficulty"`
	LearningStyle   string    `json:"learning_style" db:"learning_style"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	Rating          float64   `json:"rating" db:"rating"`
	RatingCount     int       `json:"rating_count" db:"rating_count"`
	Tags            []string  `json:"tags" db:"tags"`
	Prerequisites   []string  `json:"prerequisites" db:"prerequisites"`
	Source          string    `json:"source,omitempty" db:"source"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Popularity is the deterministic fallback ranking score used when no
// personalized signal is available: rating scaled by log interaction volume.
func (r *Resource) Popularity() float64 {
	return r.Rating * ln1p(float64(r.RatingCount))
}

type ResourceUpdate struct {
	ResourceID uuid.UUID `json:"resource_id"`
	Action     string    `json:"action"` // created, updated, deleted
	Timestamp  time.Time `json:"timestamp"`
}
