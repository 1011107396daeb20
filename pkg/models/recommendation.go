package models

import (
	"time"

	"github.com/google/uuid"
)

// ScoredResource is an intermediate (resource, score) pair flowing between
// the scorers, the blender and the re-ranker.
type ScoredResource struct {
	ResourceID uuid.UUID `json:"resource_id"`
	Score      float64   `json:"score"`
	CBFScore   float64   `json:"cbf_score"`
	CFScore    float64   `json:"cf_score"`
}

// Recommendation is one element of the final ranked list returned to
// callers, hydrated with the resource fields the consuming UIs render.
type Recommendation struct {
	ResourceID      uuid.UUID `json:"resource_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	URL             string    `json:"url"`
	MediaType       string    `json:"media_type"`
	Difficulty      string    `json:"difficulty"`
	DurationMinutes int       `json:"duration_minutes"`
	Rating          float64   `json:"rating"`
	RatingCount     int       `json:"rating_count"`
	Tags            []string  `json:"tags"`
	Score           float64   `json:"score"`
	Reason          string    `json:"reason"`
}

// RecommendationResult is the ordered, deduplicated list served for one
// request. Degraded is set when the deadline forced the re-ranker to return
// the blended ordering without diversity/novelty adjustments.
type RecommendationResult struct {
	UserID          uuid.UUID        `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	ModelVersion    string           `json:"model_version,omitempty"`
	Degraded        bool             `json:"degraded,omitempty"`
	CacheHit        bool             `json:"cache_hit"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// StepContext shapes a request beyond the plain top-k: step-scoped requests
// from the roadmap UI narrow candidates to resources sharing tags or matching
// the step difficulty, and IncludeCompleted keeps already-finished resources
// in the list (review mode).
type StepContext struct {
	Tags             []string `json:"tags,omitempty"`
	Prerequisites    []string `json:"prerequisites,omitempty"`
	Difficulty       string   `json:"difficulty,omitempty"`
	IncludeCompleted bool     `json:"include_completed,omitempty"`
}

// RetrainJob is the handle returned by the administrative retrain trigger.
type RetrainJob struct {
	JobID        uuid.UUID `json:"job_id"`
	Status       string    `json:"status"`
	Engine       string    `json:"engine"`
	Epochs       int       `json:"epochs"`
	Loss         float64   `json:"loss"`
	ModelVersion string    `json:"model_version,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
