package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/pkg/models"
)

// ResourceStore reads the learning-resource corpus. The engine never writes
// resources; ingestion is owned by the scraping pipeline.
type ResourceStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewResourceStore(db Querier, logger *logrus.Logger) *ResourceStore {
	return &ResourceStore{db: db, logger: logger}
}

const resourceColumns = `
	id, title, COALESCE(description, ''), url, media_type,
	COALESCE(difficulty, ''), COALESCE(learning_style, ''),
	COALESCE(duration_minutes, 0), COALESCE(rating, 0),
	COALESCE(rating_count, 0), COALESCE(tags, '{}'),
	COALESCE(prerequisites, '{}'), COALESCE(source, ''), updated_at`

// ListAll streams the full corpus, used at vectorizer-build and training time.
func (s *ResourceStore) ListAll(ctx context.Context) ([]models.Resource, error) {
	query := `SELECT` + resourceColumns + ` FROM resources ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: resource corpus query failed: %v", models.ErrDataUnavailable, err)
	}
	defer rows.Close()

	return scanResources(rows)
}

// ListCandidates pre-filters the corpus for a request: resources overlapping
// the step tags/prerequisites or matching the requested difficulty. With an
// empty context the whole corpus qualifies.
func (s *ResourceStore) ListCandidates(ctx context.Context, step *models.StepContext, limit int) ([]models.Resource, error) {
	query := `SELECT` + resourceColumns + ` FROM resources`
	args := []interface{}{}
	argIndex := 1

	if step != nil && (len(step.Tags) > 0 || len(step.Prerequisites) > 0 || step.Difficulty != "") {
		query += " WHERE "
		clauses := ""
		if len(step.Tags) > 0 || len(step.Prerequisites) > 0 {
			wanted := append(append([]string{}, step.Tags...), step.Prerequisites...)
			clauses += fmt.Sprintf("tags && $%d", argIndex)
			args = append(args, wanted)
			argIndex++
		}
		if step.Difficulty != "" {
			if clauses != "" {
				clauses += " OR "
			}
			clauses += fmt.Sprintf("difficulty = $%d", argIndex)
			args = append(args, step.Difficulty)
			argIndex++
		}
		query += clauses
	}

	query += fmt.Sprintf(" ORDER BY rating DESC, id LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: candidate query failed: %v", models.ErrDataUnavailable, err)
	}
	defer rows.Close()

	return scanResources(rows)
}

func scanResources(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]models.Resource, error) {
	var resources []models.Resource
	for rows.Next() {
		var r models.Resource
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Description, &r.URL, &r.MediaType,
			&r.Difficulty, &r.LearningStyle, &r.DurationMinutes, &r.Rating,
			&r.RatingCount, &r.Tags, &r.Prerequisites, &r.Source, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resource row: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: resource rows: %v", models.ErrDataUnavailable, err)
	}
	return resources, nil
}
