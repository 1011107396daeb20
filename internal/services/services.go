package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/internal/database"
	"github.com/lernia/lernia/internal/store"
)

// Services wires the engine together: stores on top of the database, the
// model registry, the scoring pipeline and the operational services around
// it.
type Services struct {
	Resources    *store.ResourceStore
	Interactions *store.InteractionStore
	Preferences  *store.PreferenceStore

	Registry *ModelRegistry
	Cache    *RecommendationCache
	Metrics  *Metrics

	Engine   *RecommendationEngine
	Training *TrainingService
	Jobs     *JobManager

	Auth      *AuthService
	RateLimit *RateLimitService
}

func New(cfg *config.Config, db *database.Database, registerer prometheus.Registerer, logger *logrus.Logger) *Services {
	s := &Services{
		Resources:    store.NewResourceStore(db.PG, logger),
		Interactions: store.NewInteractionStore(db.PG, logger),
		Preferences:  store.NewPreferenceStore(db.PG, logger),
		Registry:     NewModelRegistry(logger),
		Metrics:      NewMetrics(registerer),
	}

	s.Cache = NewRecommendationCache(db.Redis.Warm, cfg.Recommendation.Caching.RecommendationsTTL, logger)

	s.Engine = NewRecommendationEngine(
		&cfg.Recommendation,
		s.Resources, s.Interactions, s.Preferences,
		s.Registry, s.Cache, s.Metrics, logger,
	)
	s.Training = NewTrainingService(
		&cfg.Recommendation,
		s.Resources, s.Interactions,
		s.Registry, s.Cache, s.Metrics, logger,
	)
	s.Jobs = NewJobManager(s.Training, db.Redis.Warm, logger)

	s.Auth = NewAuthService(&cfg.Auth, logger)
	s.RateLimit = NewRateLimitService(&cfg.Auth.RateLimit, db.Redis.Hot, logger)

	return s
}
