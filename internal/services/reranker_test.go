package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/pkg/models"
)

func testRerankConfig() *config.RerankConfig {
	return &config.RerankConfig{
		MMRLambda:          0.7,
		NoveltyMaxBoost:    0.05,
		SoftDeadlineMargin: 50 * time.Millisecond,
		CandidateMultiple:  5,
	}
}

func rerankFixture(n int) ([]models.ScoredResource, map[uuid.UUID]models.Resource) {
	scored := make([]models.ScoredResource, 0, n)
	resources := make(map[uuid.UUID]models.Resource, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		scored = append(scored, models.ScoredResource{
			ResourceID: id,
			Score:      1.0 - float64(i)*0.05,
		})
		resources[id] = models.Resource{ID: id, RatingCount: 100, Tags: []string{"golang"}}
	}
	return scored, resources
}

func TestRerank(t *testing.T) {
	r := NewReranker(testRerankConfig(), testLogger())

	t.Run("returns at most k unique results sorted by score", func(t *testing.T) {
		scored, resources := rerankFixture(12)
		// Inject a duplicate of the top item.
		scored = append(scored, scored[0])

		ranked, degraded := r.Rerank(RerankInput{
			Scored:    scored,
			Resources: resources,
			K:         5,
		})
		assert.False(t, degraded)
		assert.LessOrEqual(t, len(ranked), 5)

		seen := make(map[uuid.UUID]bool)
		for i, sr := range ranked {
			assert.False(t, seen[sr.ResourceID], "duplicate id in output")
			seen[sr.ResourceID] = true
			if i > 0 {
				prev := ranked[i-1]
				ok := prev.Score > sr.Score ||
					(prev.Score == sr.Score && prev.ResourceID.String() < sr.ResourceID.String())
				assert.True(t, ok, "output not score-descending with id tie-break at %d", i)
			}
		}
	})

	t.Run("fewer candidates than k returns them all", func(t *testing.T) {
		scored, resources := rerankFixture(3)
		ranked, degraded := r.Rerank(RerankInput{Scored: scored, Resources: resources, K: 10})
		assert.False(t, degraded)
		assert.Len(t, ranked, 3)
	})

	t.Run("completed resources are excluded", func(t *testing.T) {
		scored, resources := rerankFixture(6)
		completed := map[uuid.UUID]bool{scored[0].ResourceID: true}

		ranked, _ := r.Rerank(RerankInput{
			Scored: scored, Resources: resources, Completed: completed, K: 6,
		})
		for _, sr := range ranked {
			assert.NotEqual(t, scored[0].ResourceID, sr.ResourceID)
		}
	})

	t.Run("avoided tags are filtered out", func(t *testing.T) {
		scored, resources := rerankFixture(6)
		avoided := resources[scored[1].ResourceID]
		avoided.Tags = []string{"golang", "legacy"}
		resources[scored[1].ResourceID] = avoided

		ranked, _ := r.Rerank(RerankInput{
			Scored:    scored,
			Resources: resources,
			Prefs:     &models.UserPreferences{AvoidTags: []string{"Legacy"}},
			K:         6,
		})
		for _, sr := range ranked {
			assert.NotEqual(t, scored[1].ResourceID, sr.ResourceID)
		}
	})

	t.Run("novelty boost is bounded and favors less-rated resources", func(t *testing.T) {
		a, b := uuid.New(), uuid.New()
		scored := []models.ScoredResource{
			{ResourceID: a, Score: 0.5},
			{ResourceID: b, Score: 0.5},
		}
		resources := map[uuid.UUID]models.Resource{
			a: {ID: a, RatingCount: 10000},
			b: {ID: b, RatingCount: 0},
		}

		ranked, _ := r.Rerank(RerankInput{Scored: scored, Resources: resources, K: 2})
		require.Len(t, ranked, 2)
		assert.Equal(t, b, ranked[0].ResourceID, "the unrated resource should win the tie")
		assert.Equal(t, 0.5, ranked[1].Score, "above-median resources get no boost")
		for _, sr := range ranked {
			assert.LessOrEqual(t, sr.Score, 0.5+testRerankConfig().NoveltyMaxBoost+1e-12)
		}
	})

	t.Run("over-duration resources are demoted not dropped", func(t *testing.T) {
		a, b := uuid.New(), uuid.New()
		scored := []models.ScoredResource{
			{ResourceID: a, Score: 0.9},
			{ResourceID: b, Score: 0.6},
		}
		resources := map[uuid.UUID]models.Resource{
			a: {ID: a, DurationMinutes: 300, RatingCount: 50},
			b: {ID: b, DurationMinutes: 30, RatingCount: 50},
		}

		ranked, _ := r.Rerank(RerankInput{
			Scored:    scored,
			Resources: resources,
			Prefs:     &models.UserPreferences{MaxDurationMinutes: 60},
			K:         2,
		})
		require.Len(t, ranked, 2)
		assert.Equal(t, b, ranked[0].ResourceID, "the demoted long resource should rank below")
		assert.Equal(t, a, ranked[1].ResourceID)
	})

	t.Run("expired deadline degrades to truncation", func(t *testing.T) {
		scored, resources := rerankFixture(12)
		ranked, degraded := r.Rerank(RerankInput{
			Scored:    scored,
			Resources: resources,
			K:         5,
			Deadline:  time.Now().Add(-time.Second),
		})
		assert.True(t, degraded)
		assert.Len(t, ranked, 5)
	})

	t.Run("expired deadline preserves the blended scores untouched", func(t *testing.T) {
		a, b := uuid.New(), uuid.New()
		scored := []models.ScoredResource{
			{ResourceID: a, Score: 0.9},
			{ResourceID: b, Score: 0.6},
		}
		resources := map[uuid.UUID]models.Resource{
			a: {ID: a, DurationMinutes: 300, RatingCount: 5000},
			b: {ID: b, DurationMinutes: 30, RatingCount: 0},
		}

		// With time to spare, a would be demoted for duration and b boosted
		// for novelty; the degraded path must skip both.
		ranked, degraded := r.Rerank(RerankInput{
			Scored:    scored,
			Resources: resources,
			Prefs:     &models.UserPreferences{MaxDurationMinutes: 60},
			K:         2,
			Deadline:  time.Now().Add(-time.Second),
		})
		require.True(t, degraded)
		require.Len(t, ranked, 2)
		assert.Equal(t, a, ranked[0].ResourceID)
		assert.Equal(t, 0.9, ranked[0].Score)
		assert.Equal(t, 0.6, ranked[1].Score)
	})

	t.Run("mmr keeps the slate diverse", func(t *testing.T) {
		corpus := testCorpus()
		snapshot := testSnapshot(t, corpus)

		scored := make([]models.ScoredResource, 0, len(corpus))
		resources := make(map[uuid.UUID]models.Resource, len(corpus))
		for i := range corpus {
			scored = append(scored, models.ScoredResource{ResourceID: corpus[i].ID, Score: 0.8})
			resources[corpus[i].ID] = corpus[i]
		}

		ranked, degraded := r.Rerank(RerankInput{
			Scored:    scored,
			Resources: resources,
			Vectors:   snapshot.ResourceVectors,
			K:         2,
		})
		assert.False(t, degraded)
		assert.Len(t, ranked, 2)
	})
}
