package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernia/lernia/pkg/models"
)

func TestAffinityValue(t *testing.T) {
	five := 5
	three := 3

	cases := []struct {
		name string
		in   models.Interaction
		want float64
	}{
		{"view", models.Interaction{Kind: models.InteractionView}, 0.1},
		{"save", models.Interaction{Kind: models.InteractionSave}, 0.3},
		{"rate five", models.Interaction{Kind: models.InteractionRate, Rating: &five}, 2.5},
		{"rate three", models.Interaction{Kind: models.InteractionRate, Rating: &three}, 1.5},
		{"complete", models.Interaction{Kind: models.InteractionComplete}, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.AffinityValue())
		})
	}
}

func TestBuildInteractionMatrix(t *testing.T) {
	user := uuid.New()
	otherUser := uuid.New()
	resource := uuid.New()
	otherResource := uuid.New()
	now := time.Now()
	five := 5

	t.Run("cells sum kinds and cap at the maximum", func(t *testing.T) {
		// view 0.1 + save 0.3 + rate5 2.5 + complete 1.0 = 3.9, capped to 2.0.
		log := []models.Interaction{
			{UserID: user, ResourceID: resource, Kind: models.InteractionView, CreatedAt: now},
			{UserID: user, ResourceID: resource, Kind: models.InteractionSave, CreatedAt: now},
			{UserID: user, ResourceID: resource, Kind: models.InteractionRate, Rating: &five, CreatedAt: now},
			{UserID: user, ResourceID: resource, Kind: models.InteractionComplete, CreatedAt: now},
		}
		m := BuildInteractionMatrix(log, 2.0)

		v, ok := m.Affinity(user, resource)
		require.True(t, ok)
		assert.Equal(t, 2.0, v)
		assert.Equal(t, 1, m.Observed())
	})

	t.Run("uncapped cell keeps its sum", func(t *testing.T) {
		log := []models.Interaction{
			{UserID: user, ResourceID: resource, Kind: models.InteractionView, CreatedAt: now},
			{UserID: user, ResourceID: resource, Kind: models.InteractionSave, CreatedAt: now},
		}
		m := BuildInteractionMatrix(log, 2.0)

		v, ok := m.Affinity(user, resource)
		require.True(t, ok)
		assert.InDelta(t, 0.4, v, 1e-12)
	})

	t.Run("unobserved cells are absent", func(t *testing.T) {
		log := []models.Interaction{
			{UserID: user, ResourceID: resource, Kind: models.InteractionView, CreatedAt: now},
		}
		m := BuildInteractionMatrix(log, 2.0)

		_, ok := m.Affinity(user, otherResource)
		assert.False(t, ok)
		_, ok = m.Affinity(otherUser, resource)
		assert.False(t, ok)
		assert.Equal(t, 0, m.RowCount(otherUser))
	})

	t.Run("global mean averages observed cells", func(t *testing.T) {
		log := []models.Interaction{
			{UserID: user, ResourceID: resource, Kind: models.InteractionComplete, CreatedAt: now},
			{UserID: otherUser, ResourceID: otherResource, Kind: models.InteractionView, CreatedAt: now},
		}
		m := BuildInteractionMatrix(log, 2.0)
		assert.InDelta(t, 0.55, m.GlobalMean(), 1e-12)
	})

	t.Run("axes are sorted and stable across rebuilds", func(t *testing.T) {
		log := []models.Interaction{
			{UserID: user, ResourceID: resource, Kind: models.InteractionView, CreatedAt: now},
			{UserID: otherUser, ResourceID: otherResource, Kind: models.InteractionSave, CreatedAt: now},
		}
		a := BuildInteractionMatrix(log, 2.0)
		b := BuildInteractionMatrix([]models.Interaction{log[1], log[0]}, 2.0)

		assert.Equal(t, a.Users(), b.Users())
		assert.Equal(t, a.Items(), b.Items())
	})

	t.Run("empty log builds an empty matrix", func(t *testing.T) {
		m := BuildInteractionMatrix(nil, 2.0)
		assert.Equal(t, 0, m.Observed())
		assert.Equal(t, 0.0, m.GlobalMean())
	})
}
