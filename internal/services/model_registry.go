package services

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/pkg/models"
)

// CollaborativeModel is the contract both trained engines satisfy. A model is
// immutable after training; Predict must be safe for concurrent use.
type CollaborativeModel interface {
	// Predict returns the predicted affinity for the pair and whether both
	// sides were seen in training.
	Predict(userID, resourceID uuid.UUID) (float64, bool)
	// KnowsUser reports whether the user has a latent representation.
	KnowsUser(userID uuid.UUID) bool
	// Confidence rates the user's prediction quality in [0,1] from how many
	// observed cells backed their row at training time. Unknown users get 0.
	Confidence(userID uuid.UUID) float64
	// GlobalMean is the training mean affinity, the fallback prediction for
	// known users on unseen resources.
	GlobalMean() float64
	// Loss is the final training loss.
	Loss() float64
	// Epochs is the number of epochs the training run took.
	Epochs() int
}

// collaborativeConfidence maps a user's observed-cell count onto [0,1],
// saturating at confidenceSaturation. Mirrors the volume half of the
// content-based confidence so both signals share a scale.
const confidenceSaturation = 20.0

func collaborativeConfidence(observed int) float64 {
	return math.Min(float64(observed), confidenceSaturation) / confidenceSaturation
}

// ModelSnapshot bundles everything a request needs to score consistently:
// the feature schema, the precomputed resource vectors and the collaborative
// model, all from the same training run. Requests read one snapshot pointer
// once and never observe a mix of old and new state.
type ModelSnapshot struct {
	Version         string
	TrainedAt       time.Time
	Vectorizer      *FeatureVectorizer
	ResourceVectors map[uuid.UUID]FeatureVector
	Collaborative   CollaborativeModel
}

// ModelRegistry publishes snapshots atomically. Readers keep serving the
// snapshot they grabbed even while a retrain swaps in a new one.
type ModelRegistry struct {
	current atomic.Pointer[ModelSnapshot]
	logger  *logrus.Logger
}

func NewModelRegistry(logger *logrus.Logger) *ModelRegistry {
	return &ModelRegistry{logger: logger}
}

// Current returns the active snapshot, or an ErrModelUnavailable-wrapped
// error before the first training run completes.
func (r *ModelRegistry) Current() (*ModelSnapshot, error) {
	s := r.current.Load()
	if s == nil {
		return nil, models.ErrModelUnavailable
	}
	return s, nil
}

// Publish atomically swaps the active snapshot. In-flight requests holding
// the previous snapshot are unaffected.
func (r *ModelRegistry) Publish(s *ModelSnapshot) {
	r.current.Store(s)
	fields := logrus.Fields{
		"model_version": s.Version,
		"trained_at":    s.TrainedAt,
		"resources":     len(s.ResourceVectors),
	}
	if s.Collaborative != nil {
		fields["loss"] = s.Collaborative.Loss()
		fields["epochs"] = s.Collaborative.Epochs()
	}
	r.logger.WithFields(fields).Info("Model snapshot published")
}

// Ready reports whether a snapshot has been published.
func (r *ModelRegistry) Ready() bool {
	return r.current.Load() != nil
}
