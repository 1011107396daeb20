package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/pkg/models"
)

func testHybridConfig() *config.HybridConfig {
	return &config.HybridConfig{
		ColdStartThreshold: 5,
		ColdContentWeight:  0.8,
		ColdCollabWeight:   0.2,
		WarmContentWeight:  0.4,
		WarmCollabWeight:   0.6,
	}
}

func TestBlendWeights(t *testing.T) {
	b := NewHybridBlender(testHybridConfig(), testLogger())

	t.Run("below threshold uses cold weights", func(t *testing.T) {
		wc, wf := b.Weights(4)
		assert.Equal(t, 0.8, wc)
		assert.Equal(t, 0.2, wf)
	})

	t.Run("at threshold switches to warm weights", func(t *testing.T) {
		wc, wf := b.Weights(5)
		assert.Equal(t, 0.4, wc)
		assert.Equal(t, 0.6, wf)
	})

	t.Run("zero interactions are cold", func(t *testing.T) {
		wc, wf := b.Weights(0)
		assert.Equal(t, 0.8, wc)
		assert.Equal(t, 0.2, wf)
	})
}

func TestBlend(t *testing.T) {
	b := NewHybridBlender(testHybridConfig(), testLogger())
	a, c := uuid.New(), uuid.New()
	candidates := []models.Resource{{ID: a}, {ID: c}}

	t.Run("applies exact weights on both sides of the threshold", func(t *testing.T) {
		cbf := map[uuid.UUID]float64{a: 1.0, c: 0.0}
		cf := map[uuid.UUID]float64{a: 0.0, c: 1.0}

		cold := b.Blend(candidates, cbf, cf, 4, 1, 1)
		warm := b.Blend(candidates, cbf, cf, 5, 1, 1)

		coldByID := scoresByID(cold)
		warmByID := scoresByID(warm)

		// cf min-max normalizes to the same 0/1 values here.
		assert.Equal(t, 0.8, coldByID[a])
		assert.Equal(t, 0.2, coldByID[c])
		assert.Equal(t, 0.4, warmByID[a])
		assert.Equal(t, 0.6, warmByID[c])
	})

	t.Run("missing collaborative signal leaves content at full weight", func(t *testing.T) {
		cbf := map[uuid.UUID]float64{a: 0.9, c: 0.3}
		scored := b.Blend(candidates, cbf, nil, 10, 1, 0)
		byID := scoresByID(scored)
		assert.Equal(t, 0.9, byID[a])
		assert.Equal(t, 0.3, byID[c])
	})

	t.Run("result is score-descending with id tie-break", func(t *testing.T) {
		x, y := uuid.New(), uuid.New()
		tied := []models.Resource{{ID: x}, {ID: y}}
		cbf := map[uuid.UUID]float64{x: 0.5, y: 0.5}

		scored := b.Blend(tied, cbf, nil, 0, 1, 0)
		require.Len(t, scored, 2)
		assert.True(t, scored[0].ResourceID.String() < scored[1].ResourceID.String())
	})

	t.Run("uniform collaborative scores normalize to midpoint", func(t *testing.T) {
		cbf := map[uuid.UUID]float64{a: 0.0, c: 0.0}
		cf := map[uuid.UUID]float64{a: 3.0, c: 3.0}
		scored := b.Blend(candidates, cbf, cf, 10, 1, 1)
		byID := scoresByID(scored)
		assert.InDelta(t, 0.6*0.5, byID[a], 1e-12)
		assert.InDelta(t, 0.6*0.5, byID[c], 1e-12)
	})

	t.Run("confidence scales each signal before the weights apply", func(t *testing.T) {
		cbf := map[uuid.UUID]float64{a: 1.0, c: 0.0}
		cf := map[uuid.UUID]float64{a: 0.0, c: 1.0}

		trusted := scoresByID(b.Blend(candidates, cbf, cf, 5, 1, 1))
		thinContent := scoresByID(b.Blend(candidates, cbf, cf, 5, 0.5, 1))

		assert.InDelta(t, 0.5*trusted[a], thinContent[a], 1e-12)
		assert.Equal(t, trusted[c], thinContent[c], "collaborative side unaffected by content confidence")

		muted := scoresByID(b.Blend(candidates, cbf, cf, 5, 1, 0))
		assert.Equal(t, 0.0, muted[c], "zero collaborative confidence silences that signal")
		assert.Equal(t, trusted[a], muted[a])
	})
}

func TestReasonFor(t *testing.T) {
	b := NewHybridBlender(testHybridConfig(), testLogger())

	t.Run("content dominated", func(t *testing.T) {
		sr := &models.ScoredResource{CBFScore: 0.9, CFScore: 0.1}
		assert.Equal(t, ReasonContent, b.ReasonFor(sr, 2))
	})

	t.Run("collaboration dominated", func(t *testing.T) {
		sr := &models.ScoredResource{CBFScore: 0.1, CFScore: 0.9}
		assert.Equal(t, ReasonCollab, b.ReasonFor(sr, 20))
	})

	t.Run("no signal at all", func(t *testing.T) {
		sr := &models.ScoredResource{}
		assert.Equal(t, ReasonPopularity, b.ReasonFor(sr, 0))
	})
}

func scoresByID(scored []models.ScoredResource) map[uuid.UUID]float64 {
	m := make(map[uuid.UUID]float64, len(scored))
	for _, s := range scored {
		m[s.ResourceID] = s.Score
	}
	return m
}
