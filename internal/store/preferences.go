package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/pkg/models"
)

// PreferenceStore gives read-only access to stated user preferences.
type PreferenceStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewPreferenceStore(db Querier, logger *logrus.Logger) *PreferenceStore {
	return &PreferenceStore{db: db, logger: logger}
}

// Get returns the user's stated preferences, or an empty record when the
// user has never filled them in. Absence is not an error.
func (s *PreferenceStore) Get(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error) {
	query := `
		SELECT user_id, COALESCE(preferred_difficulty, ''),
			COALESCE(preferred_learning_style, ''),
			COALESCE(preferred_media_types, '{}'),
			COALESCE(preferred_tags, '{}'), COALESCE(avoid_tags, '{}'),
			COALESCE(max_duration_minutes, 0), updated_at
		FROM user_preferences
		WHERE user_id = $1`

	var prefs models.UserPreferences
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&prefs.UserID, &prefs.PreferredDifficulty, &prefs.PreferredStyle,
		&prefs.PreferredMediaTypes, &prefs.PreferredTags, &prefs.AvoidTags,
		&prefs.MaxDurationMinutes, &prefs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.UserPreferences{UserID: userID}, nil
		}
		return nil, fmt.Errorf("%w: preference query failed: %v", models.ErrDataUnavailable, err)
	}

	return &prefs, nil
}
