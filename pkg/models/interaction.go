package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type InteractionKind string

const (
	InteractionView     InteractionKind = "view"
	InteractionSave     InteractionKind = "save"
	InteractionRate     InteractionKind = "rate"
	InteractionComplete InteractionKind = "complete"
)

// Interaction is one event from the append-only interaction log. The
// (user, resource, kind) triple is unique: re-issuing the same kind
// overwrites the previous event rather than duplicating it.
type Interaction struct {
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	ResourceID uuid.UUID       `json:"resource_id" db:"resource_id"`
	Kind       InteractionKind `json:"kind" db:"kind"`
	Rating     *int            `json:"rating,omitempty" db:"rating"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Validate enforces the log's write contract: a known kind, and a 1-5 rating
// present exactly when the kind is "rate".
func (i *Interaction) Validate() error {
	switch i.Kind {
	case InteractionView, InteractionSave, InteractionComplete:
		if i.Rating != nil {
			return fmt.Errorf("%w: rating only valid for kind %q", ErrInvalidInput, InteractionRate)
		}
	case InteractionRate:
		if i.Rating == nil {
			return fmt.Errorf("%w: kind %q requires a rating", ErrInvalidInput, InteractionRate)
		}
		if *i.Rating < 1 || *i.Rating > 5 {
			return fmt.Errorf("%w: rating must be in 1..5, got %d", ErrInvalidInput, *i.Rating)
		}
	default:
		return fmt.Errorf("%w: unknown interaction kind %q", ErrInvalidInput, i.Kind)
	}
	return nil
}

// AffinityValue encodes the interaction into its implicit/explicit affinity
// contribution. The table is fixed for compatibility with existing matrices:
// view 0.1, save 0.3, rate rating*0.5, complete 1.0.
func (i *Interaction) AffinityValue() float64 {
	switch i.Kind {
	case InteractionView:
		return 0.1
	case InteractionSave:
		return 0.3
	case InteractionRate:
		if i.Rating == nil {
			return 0
		}
		return float64(*i.Rating) * 0.5
	case InteractionComplete:
		return 1.0
	default:
		return 0
	}
}

type InteractionRequest struct {
	UserID     uuid.UUID `json:"user_id" binding:"required"`
	ResourceID uuid.UUID `json:"resource_id" binding:"required"`
	Kind       string    `json:"kind" binding:"required,oneof=view save rate complete"`
	Rating     *int      `json:"rating,omitempty" binding:"omitempty,min=1,max=5"`
}
