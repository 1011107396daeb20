package models

import (
	"time"

	"github.com/google/uuid"
)

// UserPreferences are the stated (explicit) preferences read from the
// preference store. All fields are optional; empty values contribute nothing
// to the profile vector.
type UserPreferences struct {
	UserID              uuid.UUID `json:"user_id" db:"user_id"`
	PreferredDifficulty string    `json:"preferred_difficulty,omitempty" db:"preferred_difficulty"`
	PreferredStyle      string    `json:"preferred_learning_style,omitempty" db:"preferred_learning_style"`
	PreferredMediaTypes []string  `json:"preferred_media_types,omitempty" db:"preferred_media_types"`
	PreferredTags       []string  `json:"preferred_tags,omitempty" db:"preferred_tags"`
	AvoidTags           []string  `json:"avoid_tags,omitempty" db:"avoid_tags"`
	MaxDurationMinutes  int       `json:"max_duration_minutes,omitempty" db:"max_duration_minutes"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// Richness counts how many preference dimensions the user actually filled in.
// It feeds the content-based confidence estimate.
func (p *UserPreferences) Richness() int {
	n := 0
	if p.PreferredDifficulty != "" {
		n++
	}
	if p.PreferredStyle != "" {
		n++
	}
	if len(p.PreferredMediaTypes) > 0 {
		n++
	}
	if len(p.PreferredTags) > 0 {
		n++
	}
	return n
}
