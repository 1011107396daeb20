package services

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/pkg/models"
)

// Relevance multiplier for resources exceeding the user's stated maximum
// duration. A demotion, not a filter: long resources can still surface when
// nothing shorter competes.
const maxDurationPenalty = 0.5

// Reranker turns the blended ranking into the final list: duplicates and
// excluded resources go, small novelty boosts reward less-rated resources,
// and maximal-marginal-relevance selection keeps the top slots diverse.
type Reranker struct {
	cfg    *config.RerankConfig
	logger *logrus.Logger
}

func NewReranker(cfg *config.RerankConfig, logger *logrus.Logger) *Reranker {
	return &Reranker{cfg: cfg, logger: logger}
}

// RerankInput carries the per-request context the re-ranker needs alongside
// the blended scores.
type RerankInput struct {
	Scored    []models.ScoredResource
	Resources map[uuid.UUID]models.Resource
	Vectors   map[uuid.UUID]FeatureVector
	Completed map[uuid.UUID]bool
	Prefs     *models.UserPreferences
	K         int
	Deadline  time.Time
}

// Rerank produces at most K results, score-descending with id tie-break.
// When the request deadline leaves no room for the novelty and diversity
// passes, the blended ranking is truncated as-is and the result is flagged
// degraded.
func (r *Reranker) Rerank(input RerankInput) ([]models.ScoredResource, bool) {
	pool := r.filter(input)

	if r.pastSoftDeadline(input.Deadline) {
		sortScored(pool)
		if len(pool) > input.K {
			pool = pool[:input.K]
		}
		return pool, true
	}

	r.applyAdjustments(pool, input)
	sortScored(pool)

	if len(pool) <= input.K {
		return pool, false
	}

	selected, degraded := r.mmrSelect(pool, input)
	sortScored(selected)
	return selected, degraded
}

// filter drops duplicates, completed resources and avoid-tag matches.
func (r *Reranker) filter(input RerankInput) []models.ScoredResource {
	avoid := make(map[string]bool)
	if input.Prefs != nil {
		for _, t := range input.Prefs.AvoidTags {
			avoid[normalizeTag(t)] = true
		}
	}

	seen := make(map[uuid.UUID]bool, len(input.Scored))
	pool := make([]models.ScoredResource, 0, len(input.Scored))

	for _, sr := range input.Scored {
		if seen[sr.ResourceID] || input.Completed[sr.ResourceID] {
			continue
		}
		seen[sr.ResourceID] = true

		if len(avoid) > 0 {
			res, ok := input.Resources[sr.ResourceID]
			if ok && hasAvoidedTag(res.Tags, avoid) {
				continue
			}
		}
		pool = append(pool, sr)
	}
	return pool
}

// applyAdjustments folds the novelty boost and duration demotion into the
// relevance scores before selection. Only the less-rated half of the pool
// gets the boost, scaled by how far below the most-rated candidate it sits.
func (r *Reranker) applyAdjustments(pool []models.ScoredResource, input RerankInput) {
	maxLogCount := 0.0
	counts := make([]float64, 0, len(pool))
	for _, sr := range pool {
		if res, ok := input.Resources[sr.ResourceID]; ok {
			maxLogCount = math.Max(maxLogCount, math.Log1p(float64(res.RatingCount)))
			counts = append(counts, float64(res.RatingCount))
		}
	}
	medianCount := 0.0
	if len(counts) > 0 {
		sort.Float64s(counts)
		medianCount = stat.Quantile(0.5, stat.Empirical, counts, nil)
	}

	for i := range pool {
		res, ok := input.Resources[pool[i].ResourceID]
		if !ok {
			continue
		}

		if input.Prefs != nil && input.Prefs.MaxDurationMinutes > 0 &&
			res.DurationMinutes > input.Prefs.MaxDurationMinutes {
			pool[i].Score *= maxDurationPenalty
		}

		if maxLogCount > 0 && r.cfg.NoveltyMaxBoost > 0 &&
			float64(res.RatingCount) <= medianCount {
			novelty := 1 - math.Log1p(float64(res.RatingCount))/maxLogCount
			pool[i].Score += r.cfg.NoveltyMaxBoost * novelty
		}
	}
}

// mmrSelect picks K resources by maximal marginal relevance: each step takes
// the candidate maximizing lambda-weighted relevance minus its similarity to
// anything already picked. Selection decides membership only; the caller
// re-sorts by score for presentation. If the soft deadline passes mid-way
// the remaining slots fill in relevance order and the result is degraded.
func (r *Reranker) mmrSelect(pool []models.ScoredResource, input RerankInput) ([]models.ScoredResource, bool) {
	selected := make([]models.ScoredResource, 0, input.K)
	remaining := append([]models.ScoredResource{}, pool...)
	lambda := r.cfg.MMRLambda

	for len(selected) < input.K && len(remaining) > 0 {
		if r.pastSoftDeadline(input.Deadline) {
			need := input.K - len(selected)
			if need > len(remaining) {
				need = len(remaining)
			}
			selected = append(selected, remaining[:need]...)
			return selected, true
		}

		bestIdx := -1
		bestVal := math.Inf(-1)
		for i, sr := range remaining {
			sim := r.maxSimilarity(sr.ResourceID, selected, input.Vectors)
			val := lambda*sr.Score - (1-lambda)*sim
			if val > bestVal || (val == bestVal && bestIdx >= 0 &&
				sr.ResourceID.String() < remaining[bestIdx].ResourceID.String()) {
				bestVal = val
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, false
}

func (r *Reranker) maxSimilarity(id uuid.UUID, selected []models.ScoredResource, vectors map[uuid.UUID]FeatureVector) float64 {
	v, ok := vectors[id]
	if !ok {
		return 0
	}
	maxSim := 0.0
	for _, s := range selected {
		sv, ok := vectors[s.ResourceID]
		if !ok || sv.Schema != v.Schema {
			continue
		}
		maxSim = math.Max(maxSim, CosineSimilarity(v.Values, sv.Values))
	}
	return maxSim
}

func (r *Reranker) pastSoftDeadline(deadline time.Time) bool {
	if deadline.IsZero() {
		return false
	}
	return time.Until(deadline) < r.cfg.SoftDeadlineMargin
}

func hasAvoidedTag(tags []string, avoid map[string]bool) bool {
	for _, t := range tags {
		if avoid[normalizeTag(t)] {
			return true
		}
	}
	return false
}
