package services

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/pkg/models"
)

// Per-kind weights for folding interaction history into the profile vector.
// Distinct from the affinity encoding: these express how strongly an event
// signals taste, not engagement depth.
var profileKindWeights = map[models.InteractionKind]float64{
	models.InteractionComplete: 1.0,
	models.InteractionRate:     0.8,
	models.InteractionSave:     0.6,
	models.InteractionView:     0.2,
}

// ContentScorer derives a profile vector from stated preferences and recent
// interaction history, then scores candidates by cosine similarity against it.
type ContentScorer struct {
	cfg    *config.ProfileConfig
	logger *logrus.Logger
}

func NewContentScorer(cfg *config.ProfileConfig, logger *logrus.Logger) *ContentScorer {
	return &ContentScorer{cfg: cfg, logger: logger}
}

// BuildProfileVector combines the preference vector with a recency-decayed,
// kind-weighted average of the vectors of interacted resources. Either side
// may be absent; with no signal at all the zero vector comes back and the
// caller falls through to popularity ranking.
func (s *ContentScorer) BuildProfileVector(
	snapshot *ModelSnapshot,
	prefs *models.UserPreferences,
	interactions []models.Interaction,
	now time.Time,
) []float64 {
	dim := snapshot.Vectorizer.Dimensions()
	profile := make([]float64, dim)

	prefVec := snapshot.Vectorizer.VectorizePreferences(prefs)
	hasPrefs := floats.Norm(prefVec.Values, 2) > 0

	history := make([]float64, dim)
	var totalWeight float64
	considered := interactions
	if s.cfg.MaxInteractions > 0 && len(considered) > s.cfg.MaxInteractions {
		considered = considered[:s.cfg.MaxInteractions]
	}
	for i := range considered {
		in := &considered[i]
		rv, ok := snapshot.ResourceVectors[in.ResourceID]
		if !ok || rv.Schema != snapshot.Vectorizer.Version() {
			continue
		}
		w := profileKindWeights[in.Kind] * s.recencyDecay(in.CreatedAt, now)

		// Low ratings push the profile away from the resource.
		if in.Kind == models.InteractionRate && in.Rating != nil && *in.Rating <= 2 {
			w = -w
		}
		if w == 0 {
			continue
		}
		floats.AddScaled(history, w, rv.Values)
		totalWeight += math.Abs(w)
	}
	hasHistory := totalWeight > 0
	if hasHistory {
		floats.Scale(1/totalWeight, history)
	}

	switch {
	case hasPrefs && hasHistory:
		floats.AddScaled(profile, s.cfg.PreferenceWeight, prefVec.Values)
		floats.AddScaled(profile, 1-s.cfg.PreferenceWeight, history)
	case hasPrefs:
		copy(profile, prefVec.Values)
	case hasHistory:
		copy(profile, history)
	}

	return profile
}

// Score computes cosine similarity between the profile vector and each
// candidate, mapped to [0,1]. Candidates vectorized under a different schema
// are recomputed on the fly so a half-rolled-out vocabulary never mixes.
func (s *ContentScorer) Score(
	snapshot *ModelSnapshot,
	profileVector []float64,
	candidates []models.Resource,
) map[uuid.UUID]float64 {
	scores := make(map[uuid.UUID]float64, len(candidates))
	for i := range candidates {
		r := &candidates[i]
		rv, ok := snapshot.ResourceVectors[r.ID]
		if !ok || rv.Schema != snapshot.Vectorizer.Version() {
			rv = snapshot.Vectorizer.VectorizeResource(r)
		}
		scores[r.ID] = (CosineSimilarity(profileVector, rv.Values) + 1) / 2
	}
	return scores
}

// Confidence estimates how much the content-based signal can be trusted for
// this user, from preference richness and history volume.
func (s *ContentScorer) Confidence(prefs *models.UserPreferences, interactionCount int) float64 {
	richness := float64(prefs.Richness()) / 4.0
	volume := math.Min(float64(interactionCount), confidenceSaturation) / confidenceSaturation
	return (richness + volume) / 2
}

func (s *ContentScorer) recencyDecay(at, now time.Time) float64 {
	if s.cfg.HalfLifeDays <= 0 || at.IsZero() {
		return 1
	}
	ageDays := now.Sub(at).Hours() / 24
	if ageDays <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * ageDays / s.cfg.HalfLifeDays)
}

// CosineSimilarity returns the cosine of the angle between two equal-length
// vectors. Identical non-zero vectors yield exactly 1; any zero vector yields
// exactly 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := floats.Dot(a, b) / (na * nb)
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}
