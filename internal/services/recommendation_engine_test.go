package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/internal/store"
	"github.com/lernia/lernia/pkg/models"
)

func testRecommendationConfig() *config.RecommendationConfig {
	return &config.RecommendationConfig{
		Features: *testFeatureConfig(),
		Profile:  *testProfileConfig(),
		Matrix:   config.MatrixConfig{MaxAffinity: 2.0},
		Training: *testTrainingConfig(),
		Hybrid:   *testHybridConfig(),
		Rerank:   *testRerankConfig(),
		Caching:  config.CachingConfig{RecommendationsTTL: 15 * time.Minute},
	}
}

func newTestEngine(t *testing.T) (*RecommendationEngine, pgxmock.PgxPoolIface, *ModelRegistry) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	logger := testLogger()
	registry := NewModelRegistry(logger)
	cache := NewRecommendationCache(nil, time.Minute, logger)
	metrics := NewMetrics(prometheus.NewRegistry())

	engine := NewRecommendationEngine(
		testRecommendationConfig(),
		store.NewResourceStore(mock, logger),
		store.NewInteractionStore(mock, logger),
		store.NewPreferenceStore(mock, logger),
		registry, cache, metrics, logger,
	)
	return engine, mock, registry
}

func resourceRows(resources []models.Resource) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "title", "description", "url", "media_type", "difficulty",
		"learning_style", "duration_minutes", "rating", "rating_count",
		"tags", "prerequisites", "source", "updated_at",
	})
	for _, r := range resources {
		rows.AddRow(
			r.ID, r.Title, r.Description, r.URL, r.MediaType, r.Difficulty,
			r.LearningStyle, r.DurationMinutes, r.Rating, r.RatingCount,
			r.Tags, r.Prerequisites, r.Source, r.UpdatedAt,
		)
	}
	return rows
}

func TestGetRecommendationsValidation(t *testing.T) {
	engine, _, registry := newTestEngine(t)
	registry.Publish(testSnapshot(t, testCorpus()))
	ctx := context.Background()

	_, err := engine.GetRecommendations(ctx, uuid.Nil, 10, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = engine.GetRecommendations(ctx, uuid.New(), 0, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = engine.GetRecommendations(ctx, uuid.New(), -3, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGetRecommendationsPopularityFallback(t *testing.T) {
	// A user with no preferences and no history, and a snapshot without a
	// collaborative model: the result must be the popularity ranking.
	engine, mock, registry := newTestEngine(t)
	corpus := testCorpus()
	registry.Publish(testSnapshot(t, corpus))

	userID := uuid.New()

	mock.ExpectQuery("FROM user_preferences").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM user_resource_interactions").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "resource_id", "kind", "rating", "created_at"}))
	mock.ExpectQuery("FROM resources").
		WithArgs(10 * testRerankConfig().CandidateMultiple).
		WillReturnRows(resourceRows(corpus))

	result, err := engine.GetRecommendations(context.Background(), userID, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Recommendations)

	for i, rec := range result.Recommendations {
		assert.Equal(t, ReasonPopularity, rec.Reason)
		if i > 0 {
			assert.GreaterOrEqual(t, result.Recommendations[i-1].Score, rec.Score)
		}
	}
	// rating 4.2 with 300 ratings beats rating 4.8 with 60.
	assert.Equal(t, "Database Indexing Deep Dive", result.Recommendations[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecommendationsTagAffinity(t *testing.T) {
	// A user who completed a golang resource: other golang resources rank
	// above unrelated ones, and the completed one never comes back.
	engine, mock, registry := newTestEngine(t)
	corpus := testCorpus()
	registry.Publish(testSnapshot(t, corpus))

	userID := uuid.New()
	completedID := corpus[0].ID
	now := time.Now()

	mock.ExpectQuery("FROM user_preferences").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM user_resource_interactions").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "resource_id", "kind", "rating", "created_at"}).
			AddRow(userID, completedID, models.InteractionComplete, nil, now))
	mock.ExpectQuery("FROM resources").
		WithArgs(10 * testRerankConfig().CandidateMultiple).
		WillReturnRows(resourceRows(corpus))
	mock.ExpectQuery("kind = 'complete'").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"resource_id"}).AddRow(completedID))

	result, err := engine.GetRecommendations(context.Background(), userID, 10, nil)
	require.NoError(t, err)
	require.Len(t, result.Recommendations, 2)

	for _, rec := range result.Recommendations {
		assert.NotEqual(t, completedID, rec.ResourceID, "completed resource must not reappear")
	}
	assert.Equal(t, "Advanced Channel Patterns", result.Recommendations[0].Title,
		"the related golang resource should outrank the database one")
	assert.Equal(t, ReasonContent, result.Recommendations[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecommendationsIncludeCompleted(t *testing.T) {
	// Review mode keeps finished resources in the list and skips the
	// completed-set lookup entirely.
	engine, mock, registry := newTestEngine(t)
	corpus := testCorpus()
	registry.Publish(testSnapshot(t, corpus))

	userID := uuid.New()
	completedID := corpus[0].ID
	now := time.Now()

	mock.ExpectQuery("FROM user_preferences").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM user_resource_interactions").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "resource_id", "kind", "rating", "created_at"}).
			AddRow(userID, completedID, models.InteractionComplete, nil, now))
	mock.ExpectQuery("FROM resources").
		WithArgs(10 * testRerankConfig().CandidateMultiple).
		WillReturnRows(resourceRows(corpus))

	step := &models.StepContext{IncludeCompleted: true}
	result, err := engine.GetRecommendations(context.Background(), userID, 10, step)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(result.Recommendations))
	for _, rec := range result.Recommendations {
		ids = append(ids, rec.ResourceID)
	}
	assert.Contains(t, ids, completedID, "completed resource stays in review mode")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecommendationsWithoutSnapshot(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	corpus := testCorpus()
	userID := uuid.New()

	mock.ExpectQuery("FROM resources").
		WithArgs(5 * testRerankConfig().CandidateMultiple).
		WillReturnRows(resourceRows(corpus))

	result, err := engine.GetRecommendations(context.Background(), userID, 5, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Recommendations)
	assert.Empty(t, result.ModelVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecommendationsEmptyCorpus(t *testing.T) {
	engine, mock, registry := newTestEngine(t)
	registry.Publish(testSnapshot(t, testCorpus()))
	userID := uuid.New()

	mock.ExpectQuery("FROM user_preferences").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM user_resource_interactions").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "resource_id", "kind", "rating", "created_at"}))
	mock.ExpectQuery("FROM resources").
		WithArgs(3 * testRerankConfig().CandidateMultiple).
		WillReturnRows(resourceRows(nil))

	result, err := engine.GetRecommendations(context.Background(), userID, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Recommendations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordInteraction(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	userID, resourceID := uuid.New(), uuid.New()

	t.Run("valid interaction is appended", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO user_resource_interactions").
			WithArgs(userID, resourceID, "view", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := engine.RecordInteraction(context.Background(), &models.Interaction{
			UserID:     userID,
			ResourceID: resourceID,
			Kind:       models.InteractionView,
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid interaction is rejected before the store", func(t *testing.T) {
		err := engine.RecordInteraction(context.Background(), &models.Interaction{
			UserID:     userID,
			ResourceID: resourceID,
			Kind:       models.InteractionRate, // missing rating
		})
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})
}
