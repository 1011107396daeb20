package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/internal/store"
	"github.com/lernia/lernia/pkg/models"
)

// TrainingService runs full retrains: rebuild the feature schema and
// resource vectors from the corpus, rebuild the interaction matrix from the
// log, fit the configured collaborative engine and publish the whole thing
// as one snapshot. Serving continues on the previous snapshot throughout.
type TrainingService struct {
	cfg          *config.RecommendationConfig
	resources    *store.ResourceStore
	interactions *store.InteractionStore
	registry     *ModelRegistry
	cache        *RecommendationCache
	metrics      *Metrics
	logger       *logrus.Logger

	mu sync.Mutex // one training run at a time
}

func NewTrainingService(
	cfg *config.RecommendationConfig,
	resources *store.ResourceStore,
	interactions *store.InteractionStore,
	registry *ModelRegistry,
	cache *RecommendationCache,
	metrics *Metrics,
	logger *logrus.Logger,
) *TrainingService {
	return &TrainingService{
		cfg:          cfg,
		resources:    resources,
		interactions: interactions,
		registry:     registry,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
	}
}

// Retrain builds and publishes a new model snapshot. A failed run leaves the
// previously published snapshot in service and returns the error. With an
// empty interaction log the snapshot still publishes, collaborative-less, so
// content scoring works from the first resource onward.
func (s *TrainingService) Retrain(ctx context.Context, engine string) (*ModelSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if engine == "" {
		engine = s.cfg.Training.Engine
	}

	corpus, err := s.resources.ListAll(ctx)
	if err != nil {
		s.metrics.TrainingRuns.WithLabelValues(engine, "failed").Inc()
		return nil, err
	}
	if len(corpus) == 0 {
		s.metrics.TrainingRuns.WithLabelValues(engine, "failed").Inc()
		return nil, fmt.Errorf("%w: resource corpus is empty", models.ErrDataUnavailable)
	}

	vectorizer := BuildVectorizer(corpus, &s.cfg.Features, s.logger)
	vectors := make(map[uuid.UUID]FeatureVector, len(corpus))
	for i := range corpus {
		vectors[corpus[i].ID] = vectorizer.VectorizeResource(&corpus[i])
	}

	log, err := s.interactions.ListAll(ctx)
	if err != nil {
		s.metrics.TrainingRuns.WithLabelValues(engine, "failed").Inc()
		return nil, err
	}

	var collaborative CollaborativeModel
	if len(log) > 0 {
		matrix := BuildInteractionMatrix(log, s.cfg.Matrix.MaxAffinity)
		collaborative, err = s.trainCollaborative(ctx, engine, matrix)
		if err != nil {
			s.metrics.TrainingRuns.WithLabelValues(engine, "failed").Inc()
			return nil, err
		}
	} else {
		s.logger.Warn("Interaction log empty, publishing content-only snapshot")
	}

	now := time.Now().UTC()
	snapshot := &ModelSnapshot{
		Version:         fmt.Sprintf("%s-%s-%s", engine, now.Format("20060102T150405Z"), vectorizer.Version()[:8]),
		TrainedAt:       now,
		Vectorizer:      vectorizer,
		ResourceVectors: vectors,
		Collaborative:   collaborative,
	}

	s.registry.Publish(snapshot)
	s.cache.Flush(ctx)

	s.metrics.TrainingRuns.WithLabelValues(engine, "success").Inc()
	if collaborative != nil {
		s.metrics.TrainingLoss.Set(collaborative.Loss())
		s.metrics.TrainingEpochs.Set(float64(collaborative.Epochs()))
	}

	return snapshot, nil
}

func (s *TrainingService) trainCollaborative(ctx context.Context, engine string, matrix *InteractionMatrix) (CollaborativeModel, error) {
	switch engine {
	case "factorization":
		return TrainFactorization(ctx, matrix, &s.cfg.Training, s.logger)
	case "neural":
		return TrainNeuralCF(ctx, matrix, &s.cfg.Training, s.logger)
	default:
		return nil, fmt.Errorf("%w: unknown training engine %q", models.ErrInvalidInput, engine)
	}
}
