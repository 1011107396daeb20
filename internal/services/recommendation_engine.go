package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/internal/store"
	"github.com/lernia/lernia/pkg/models"
)

// RecommendationEngine orchestrates the pipeline: candidate retrieval,
// content and collaborative scoring, hybrid blending, re-ranking, hydration
// and caching. It reads one model snapshot per request, so a retrain
// publishing mid-request never mixes state.
type RecommendationEngine struct {
	cfg          *config.RecommendationConfig
	resources    *store.ResourceStore
	interactions *store.InteractionStore
	preferences  *store.PreferenceStore
	registry     *ModelRegistry
	scorer       *ContentScorer
	blender      *HybridBlender
	reranker     *Reranker
	cache        *RecommendationCache
	metrics      *Metrics
	logger       *logrus.Logger
}

func NewRecommendationEngine(
	cfg *config.RecommendationConfig,
	resources *store.ResourceStore,
	interactions *store.InteractionStore,
	preferences *store.PreferenceStore,
	registry *ModelRegistry,
	cache *RecommendationCache,
	metrics *Metrics,
	logger *logrus.Logger,
) *RecommendationEngine {
	return &RecommendationEngine{
		cfg:          cfg,
		resources:    resources,
		interactions: interactions,
		preferences:  preferences,
		registry:     registry,
		scorer:       NewContentScorer(&cfg.Profile, logger),
		blender:      NewHybridBlender(&cfg.Hybrid, logger),
		reranker:     NewReranker(&cfg.Rerank, logger),
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
	}
}

// GetRecommendations produces the top-k list for a user, optionally scoped
// to a roadmap step. Results are cached per (user, request shape, model
// version); the cache never blocks the pipeline when unavailable.
func (e *RecommendationEngine) GetRecommendations(ctx context.Context, userID uuid.UUID, k int, step *models.StepContext) (*models.RecommendationResult, error) {
	start := time.Now()

	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", models.ErrInvalidInput)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", models.ErrInvalidInput, k)
	}

	snapshot, err := e.registry.Current()
	if err != nil {
		// No model yet: serve popularity ranking rather than failing.
		result, ferr := e.popularityFallback(ctx, userID, k, step)
		if ferr != nil {
			return nil, ferr
		}
		e.observe(start, "fallback")
		return result, nil
	}

	fingerprint := RequestFingerprint(k, step)
	if cached := e.cache.Get(ctx, userID, fingerprint, snapshot.Version); cached != nil {
		e.metrics.CacheHits.Inc()
		e.observe(start, "cache_hit")
		return cached, nil
	}
	e.metrics.CacheMisses.Inc()

	prefs, err := e.preferences.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := e.interactions.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	candidateLimit := k * e.cfg.Rerank.CandidateMultiple
	candidates, err := e.resources.ListCandidates(ctx, step, candidateLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return e.emptyResult(userID, snapshot.Version), nil
	}

	profileVector := e.scorer.BuildProfileVector(snapshot, prefs, history, time.Now())
	hasContent := vectorNonZero(profileVector)
	cf := e.collaborativeScores(snapshot, userID, candidates)

	if !hasContent && len(cf) == 0 {
		result := e.rankByPopularity(userID, k, candidates, snapshot.Version)
		e.cache.Set(ctx, result, fingerprint)
		e.metrics.FallbackResponses.Inc()
		e.observe(start, "fallback")
		return result, nil
	}

	var cbf map[uuid.UUID]float64
	cbfConfidence := 0.0
	if hasContent {
		cbf = e.scorer.Score(snapshot, profileVector, candidates)
		cbfConfidence = e.scorer.Confidence(prefs, len(history))
	}
	cfConfidence := 0.0
	if len(cf) > 0 {
		cfConfidence = snapshot.Collaborative.Confidence(userID)
	}

	scored := e.blender.Blend(candidates, cbf, cf, len(history), cbfConfidence, cfConfidence)

	var completed map[uuid.UUID]bool
	if step == nil || !step.IncludeCompleted {
		completed, err = e.interactions.CompletedResourceIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	byID := make(map[uuid.UUID]models.Resource, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	deadline, _ := ctx.Deadline()
	ranked, degraded := e.reranker.Rerank(RerankInput{
		Scored:    scored,
		Resources: byID,
		Vectors:   snapshot.ResourceVectors,
		Completed: completed,
		Prefs:     prefs,
		K:         k,
		Deadline:  deadline,
	})
	if degraded {
		e.metrics.DegradedResponses.Inc()
	}

	result := &models.RecommendationResult{
		UserID:          userID,
		Recommendations: e.hydrate(ranked, byID, len(history)),
		ModelVersion:    snapshot.Version,
		Degraded:        degraded,
		GeneratedAt:     time.Now().UTC(),
	}

	e.cache.Set(ctx, result, fingerprint)
	e.observe(start, outcomeLabel(degraded))

	e.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"count":         len(result.Recommendations),
		"model_version": snapshot.Version,
		"degraded":      degraded,
		"duration":      time.Since(start),
	}).Debug("Recommendations generated")

	return result, nil
}

// RecordInteraction appends to the log and invalidates the user's cached
// lists in the same call, so the next request reflects the event.
func (e *RecommendationEngine) RecordInteraction(ctx context.Context, interaction *models.Interaction) error {
	if err := e.interactions.Append(ctx, interaction); err != nil {
		return err
	}
	e.cache.InvalidateUser(ctx, interaction.UserID)
	e.metrics.Interactions.WithLabelValues(string(interaction.Kind)).Inc()
	return nil
}

// InvalidateUser drops the user's cached lists, used when preferences change.
func (e *RecommendationEngine) InvalidateUser(ctx context.Context, userID uuid.UUID) {
	e.cache.InvalidateUser(ctx, userID)
}

// HandleResourceUpdate reacts to corpus changes from the ingestion pipeline.
// Vectors refresh at the next retrain; cached lists referencing stale
// resource data are dropped now.
func (e *RecommendationEngine) HandleResourceUpdate(ctx context.Context, update *models.ResourceUpdate) {
	e.cache.Flush(ctx)
	e.logger.WithFields(logrus.Fields{
		"resource_id": update.ResourceID,
		"action":      update.Action,
	}).Debug("Flushed recommendation cache after resource update")
}

func (e *RecommendationEngine) collaborativeScores(snapshot *ModelSnapshot, userID uuid.UUID, candidates []models.Resource) map[uuid.UUID]float64 {
	if snapshot.Collaborative == nil || !snapshot.Collaborative.KnowsUser(userID) {
		return nil
	}
	cf := make(map[uuid.UUID]float64, len(candidates))
	for i := range candidates {
		score, ok := snapshot.Collaborative.Predict(userID, candidates[i].ID)
		if !ok {
			// Known user, unseen resource: fall back to the training mean.
			score = snapshot.Collaborative.GlobalMean()
		}
		cf[candidates[i].ID] = score
	}
	return cf
}

// popularityFallback serves rating-weighted popularity straight from the
// store, for when no model snapshot exists at all.
func (e *RecommendationEngine) popularityFallback(ctx context.Context, userID uuid.UUID, k int, step *models.StepContext) (*models.RecommendationResult, error) {
	candidates, err := e.resources.ListCandidates(ctx, step, k*e.cfg.Rerank.CandidateMultiple)
	if err != nil {
		return nil, err
	}
	e.metrics.FallbackResponses.Inc()
	return e.rankByPopularity(userID, k, candidates, ""), nil
}

func (e *RecommendationEngine) rankByPopularity(userID uuid.UUID, k int, candidates []models.Resource, modelVersion string) *models.RecommendationResult {
	sorted := append([]models.Resource{}, candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Popularity(), sorted[j].Popularity()
		if pi != pj {
			return pi > pj
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	if len(sorted) > k {
		sorted = sorted[:k]
	}

	recs := make([]models.Recommendation, 0, len(sorted))
	for i := range sorted {
		rec := recommendationFromResource(&sorted[i])
		rec.Score = sorted[i].Popularity()
		rec.Reason = ReasonPopularity
		recs = append(recs, rec)
	}

	return &models.RecommendationResult{
		UserID:          userID,
		Recommendations: recs,
		ModelVersion:    modelVersion,
		GeneratedAt:     time.Now().UTC(),
	}
}

func (e *RecommendationEngine) hydrate(ranked []models.ScoredResource, byID map[uuid.UUID]models.Resource, interactionCount int) []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(ranked))
	for i := range ranked {
		res, ok := byID[ranked[i].ResourceID]
		if !ok {
			continue
		}
		rec := recommendationFromResource(&res)
		rec.Score = ranked[i].Score
		rec.Reason = e.blender.ReasonFor(&ranked[i], interactionCount)
		recs = append(recs, rec)
	}
	return recs
}

func (e *RecommendationEngine) emptyResult(userID uuid.UUID, modelVersion string) *models.RecommendationResult {
	return &models.RecommendationResult{
		UserID:          userID,
		Recommendations: []models.Recommendation{},
		ModelVersion:    modelVersion,
		GeneratedAt:     time.Now().UTC(),
	}
}

func (e *RecommendationEngine) observe(start time.Time, outcome string) {
	e.metrics.RequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func outcomeLabel(degraded bool) string {
	if degraded {
		return "degraded"
	}
	return "computed"
}

func recommendationFromResource(r *models.Resource) models.Recommendation {
	return models.Recommendation{
		ResourceID:      r.ID,
		Title:           r.Title,
		Description:     r.Description,
		URL:             r.URL,
		MediaType:       r.MediaType,
		Difficulty:      r.Difficulty,
		DurationMinutes: r.DurationMinutes,
		Rating:          r.Rating,
		RatingCount:     r.RatingCount,
		Tags:            r.Tags,
		Score:           r.Popularity(),
		Reason:          ReasonPopularity,
	}
}

func vectorNonZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}
