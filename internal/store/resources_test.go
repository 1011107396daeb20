package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernia/lernia/pkg/models"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func sampleResourceRows(ids ...uuid.UUID) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "title", "description", "url", "media_type", "difficulty",
		"learning_style", "duration_minutes", "rating", "rating_count",
		"tags", "prerequisites", "source", "updated_at",
	})
	for i, id := range ids {
		rows.AddRow(
			id, "Resource", "A description", "https://example.com", "video",
			"beginner", "visual", 30+i, 4.0, 10,
			[]string{"golang"}, []string{}, "scraper", time.Now(),
		)
	}
	return rows
}

func TestResourceStoreListAll(t *testing.T) {
	mock := newMock(t)
	s := NewResourceStore(mock, quietLogger())

	t.Run("returns the corpus", func(t *testing.T) {
		a, b := uuid.New(), uuid.New()
		mock.ExpectQuery("FROM resources").WillReturnRows(sampleResourceRows(a, b))

		resources, err := s.ListAll(context.Background())
		require.NoError(t, err)
		require.Len(t, resources, 2)
		assert.Equal(t, a, resources[0].ID)
		assert.Equal(t, "golang", resources[0].Tags[0])
	})

	t.Run("wraps store failures", func(t *testing.T) {
		mock.ExpectQuery("FROM resources").WillReturnError(errors.New("connection refused"))

		_, err := s.ListAll(context.Background())
		assert.ErrorIs(t, err, models.ErrDataUnavailable)
	})
}

func TestResourceStoreListCandidates(t *testing.T) {
	mock := newMock(t)
	s := NewResourceStore(mock, quietLogger())

	t.Run("no step context selects the whole corpus", func(t *testing.T) {
		mock.ExpectQuery("FROM resources ORDER BY rating DESC, id LIMIT").
			WithArgs(50).
			WillReturnRows(sampleResourceRows(uuid.New()))

		resources, err := s.ListCandidates(context.Background(), nil, 50)
		require.NoError(t, err)
		assert.Len(t, resources, 1)
	})

	t.Run("step tags and difficulty narrow the query", func(t *testing.T) {
		step := &models.StepContext{
			Tags:          []string{"golang"},
			Prerequisites: []string{"concurrency"},
			Difficulty:    "beginner",
		}
		mock.ExpectQuery(`tags && \$1 OR difficulty = \$2`).
			WithArgs([]string{"golang", "concurrency"}, "beginner", 20).
			WillReturnRows(sampleResourceRows(uuid.New()))

		resources, err := s.ListCandidates(context.Background(), step, 20)
		require.NoError(t, err)
		assert.Len(t, resources, 1)
	})
}
