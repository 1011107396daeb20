package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/pkg/models"
)

// InteractionStore reads and appends the interaction log. The log is the
// source of truth for the interaction matrix; the matrix itself is never
// persisted.
type InteractionStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewInteractionStore(db Querier, logger *logrus.Logger) *InteractionStore {
	return &InteractionStore{db: db, logger: logger}
}

// Append upserts on the (user, resource, kind) key: re-issuing the same kind
// overwrites the previous event instead of duplicating it.
func (s *InteractionStore) Append(ctx context.Context, interaction *models.Interaction) error {
	if err := interaction.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO user_resource_interactions (user_id, resource_id, kind, rating, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, resource_id, kind)
		DO UPDATE SET rating = EXCLUDED.rating, created_at = EXCLUDED.created_at`

	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, query,
		interaction.UserID, interaction.ResourceID, string(interaction.Kind),
		interaction.Rating, interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to append interaction: %v", models.ErrDataUnavailable, err)
	}

	return nil
}

// ListByUser returns the user's interactions, most recent first, capped at
// limit (0 means no cap).
func (s *InteractionStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Interaction, error) {
	query := `
		SELECT user_id, resource_id, kind, rating, created_at
		FROM user_resource_interactions
		WHERE user_id = $1
		ORDER BY created_at DESC`
	args := []interface{}{userID}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: interaction query failed: %v", models.ErrDataUnavailable, err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var in models.Interaction
		if err := rows.Scan(&in.UserID, &in.ResourceID, &in.Kind, &in.Rating, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction row: %w", err)
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: interaction rows: %v", models.ErrDataUnavailable, err)
	}

	return interactions, nil
}

// ListAll streams the whole log for matrix rebuilds and training.
func (s *InteractionStore) ListAll(ctx context.Context) ([]models.Interaction, error) {
	query := `
		SELECT user_id, resource_id, kind, rating, created_at
		FROM user_resource_interactions
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: interaction log query failed: %v", models.ErrDataUnavailable, err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var in models.Interaction
		if err := rows.Scan(&in.UserID, &in.ResourceID, &in.Kind, &in.Rating, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction row: %w", err)
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: interaction rows: %v", models.ErrDataUnavailable, err)
	}

	return interactions, nil
}

// CompletedResourceIDs returns the set of resources the user marked complete.
func (s *InteractionStore) CompletedResourceIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	query := `
		SELECT resource_id
		FROM user_resource_interactions
		WHERE user_id = $1 AND kind = 'complete'`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: completed query failed: %v", models.ErrDataUnavailable, err)
	}
	defer rows.Close()

	completed := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan resource id: %w", err)
		}
		completed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: completed rows: %v", models.ErrDataUnavailable, err)
	}

	return completed, nil
}
