package services

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/pkg/models"
)

// Reason strings surfaced with each recommendation.
const (
	ReasonContent    = "Based on your learning preferences and content similarity"
	ReasonCollab     = "Popular among users with similar interests"
	ReasonPopularity = "Popular resource"
)

// HybridBlender combines content-based and collaborative scores into one
// ranking. Users below the cold-start threshold lean on content; users with
// enough history lean on the collaborative signal.
type HybridBlender struct {
	cfg    *config.HybridConfig
	logger *logrus.Logger
}

func NewHybridBlender(cfg *config.HybridConfig, logger *logrus.Logger) *HybridBlender {
	return &HybridBlender{cfg: cfg, logger: logger}
}

// Weights returns the (content, collaborative) pair for a user with the
// given interaction count. The switch is a step at the threshold: a user
// with exactly threshold interactions already counts as warm.
func (b *HybridBlender) Weights(interactionCount int) (float64, float64) {
	if interactionCount < b.cfg.ColdStartThreshold {
		return b.cfg.ColdContentWeight, b.cfg.ColdCollabWeight
	}
	return b.cfg.WarmContentWeight, b.cfg.WarmCollabWeight
}

// Blend merges the two score maps over the candidate set. Each signal is
// first scaled by its confidence in [0,1], so a thin signal contributes less
// even when its interaction-count weight is high. Collaborative scores are
// min-max normalized across the candidates so both signals share the [0,1]
// range; when the collaborative side is missing entirely the content score
// carries full weight rather than being scaled down.
func (b *HybridBlender) Blend(
	candidates []models.Resource,
	cbf map[uuid.UUID]float64,
	cf map[uuid.UUID]float64,
	interactionCount int,
	cbfConfidence, cfConfidence float64,
) []models.ScoredResource {
	wContent, wCollab := b.Weights(interactionCount)
	cfNorm := minMaxNormalize(cf)

	scored := make([]models.ScoredResource, 0, len(candidates))
	for i := range candidates {
		id := candidates[i].ID
		sr := models.ScoredResource{ResourceID: id, CBFScore: cbfConfidence * cbf[id]}

		if cfScore, ok := cfNorm[id]; ok {
			sr.CFScore = cfConfidence * cfScore
			sr.Score = wContent*sr.CBFScore + wCollab*sr.CFScore
		} else if len(cfNorm) == 0 {
			sr.Score = sr.CBFScore
		} else {
			sr.Score = wContent * sr.CBFScore
		}
		scored = append(scored, sr)
	}

	sortScored(scored)
	return scored
}

// ReasonFor explains which signal put the resource on the list.
func (b *HybridBlender) ReasonFor(sr *models.ScoredResource, interactionCount int) string {
	wContent, wCollab := b.Weights(interactionCount)
	if sr.CBFScore == 0 && sr.CFScore == 0 {
		return ReasonPopularity
	}
	if wCollab*sr.CFScore > wContent*sr.CBFScore {
		return ReasonCollab
	}
	return ReasonContent
}

// sortScored orders by score descending with resource id as the tie-break,
// so equal scores rank deterministically.
func sortScored(scored []models.ScoredResource) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ResourceID.String() < scored[j].ResourceID.String()
	})
}

func minMaxNormalize(scores map[uuid.UUID]float64) map[uuid.UUID]float64 {
	if len(scores) == 0 {
		return scores
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range scores {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	norm := make(map[uuid.UUID]float64, len(scores))
	if hi == lo {
		for id := range scores {
			norm[id] = 0.5
		}
		return norm
	}
	for id, v := range scores {
		norm[id] = (v - lo) / (hi - lo)
	}
	return norm
}
