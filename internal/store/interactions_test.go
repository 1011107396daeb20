package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernia/lernia/pkg/models"
)

func TestInteractionStoreAppend(t *testing.T) {
	mock := newMock(t)
	s := NewInteractionStore(mock, quietLogger())
	userID, resourceID := uuid.New(), uuid.New()

	t.Run("upserts on the triple key", func(t *testing.T) {
		mock.ExpectExec("ON CONFLICT \\(user_id, resource_id, kind\\)").
			WithArgs(userID, resourceID, "save", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.Append(context.Background(), &models.Interaction{
			UserID:     userID,
			ResourceID: resourceID,
			Kind:       models.InteractionSave,
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validates before touching the database", func(t *testing.T) {
		six := 6
		err := s.Append(context.Background(), &models.Interaction{
			UserID:     userID,
			ResourceID: resourceID,
			Kind:       models.InteractionRate,
			Rating:     &six,
		})
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("rating outside rate kind is rejected", func(t *testing.T) {
		three := 3
		err := s.Append(context.Background(), &models.Interaction{
			UserID:     userID,
			ResourceID: resourceID,
			Kind:       models.InteractionView,
			Rating:     &three,
		})
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("wraps store failures", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO user_resource_interactions").
			WithArgs(userID, resourceID, "view", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection reset"))

		err := s.Append(context.Background(), &models.Interaction{
			UserID:     userID,
			ResourceID: resourceID,
			Kind:       models.InteractionView,
		})
		assert.ErrorIs(t, err, models.ErrDataUnavailable)
	})
}

func TestInteractionStoreListByUser(t *testing.T) {
	mock := newMock(t)
	s := NewInteractionStore(mock, quietLogger())
	userID := uuid.New()
	now := time.Now()

	t.Run("returns history most recent first", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"user_id", "resource_id", "kind", "rating", "created_at"}).
			AddRow(userID, uuid.New(), models.InteractionComplete, nil, now).
			AddRow(userID, uuid.New(), models.InteractionView, nil, now.Add(-time.Hour))
		mock.ExpectQuery("ORDER BY created_at DESC").
			WithArgs(userID).
			WillReturnRows(rows)

		history, err := s.ListByUser(context.Background(), userID, 0)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.InteractionComplete, history[0].Kind)
	})

	t.Run("limit caps the query", func(t *testing.T) {
		mock.ExpectQuery("LIMIT").
			WithArgs(userID, 10).
			WillReturnRows(pgxmock.NewRows([]string{"user_id", "resource_id", "kind", "rating", "created_at"}))

		_, err := s.ListByUser(context.Background(), userID, 10)
		assert.NoError(t, err)
	})
}

func TestInteractionStoreCompletedResourceIDs(t *testing.T) {
	mock := newMock(t)
	s := NewInteractionStore(mock, quietLogger())
	userID := uuid.New()

	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery("kind = 'complete'").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"resource_id"}).AddRow(a).AddRow(b))

	completed, err := s.CompletedResourceIDs(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, completed[a])
	assert.True(t, completed[b])
	assert.False(t, completed[uuid.New()])
}

func TestPreferenceStoreGet(t *testing.T) {
	mock := newMock(t)
	s := NewPreferenceStore(mock, quietLogger())
	userID := uuid.New()

	t.Run("missing row yields empty preferences", func(t *testing.T) {
		mock.ExpectQuery("FROM user_preferences").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)

		prefs, err := s.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, userID, prefs.UserID)
		assert.Equal(t, 0, prefs.Richness())
	})

	t.Run("existing row scans fully", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{
			"user_id", "preferred_difficulty", "preferred_learning_style",
			"preferred_media_types", "preferred_tags", "avoid_tags",
			"max_duration_minutes", "updated_at",
		}).AddRow(userID, "beginner", "visual", []string{"video"}, []string{"golang"}, []string{"legacy"}, 60, time.Now())
		mock.ExpectQuery("FROM user_preferences").
			WithArgs(userID).
			WillReturnRows(rows)

		prefs, err := s.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "beginner", prefs.PreferredDifficulty)
		assert.Equal(t, []string{"legacy"}, prefs.AvoidTags)
		assert.Equal(t, 60, prefs.MaxDurationMinutes)
	})

	t.Run("wraps store failures", func(t *testing.T) {
		mock.ExpectQuery("FROM user_preferences").
			WithArgs(userID).
			WillReturnError(errors.New("timeout"))

		_, err := s.Get(context.Background(), userID)
		assert.ErrorIs(t, err, models.ErrDataUnavailable)
	})
}
