package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus instruments. Construction registers
// them on the given registerer, so tests can use a private registry.
type Metrics struct {
	RequestDuration   *prometheus.HistogramVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	DegradedResponses prometheus.Counter
	FallbackResponses prometheus.Counter
	Interactions      *prometheus.CounterVec
	TrainingRuns      *prometheus.CounterVec
	TrainingLoss      prometheus.Gauge
	TrainingEpochs    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recommendation_request_duration_seconds",
			Help:    "Latency of recommendation generation by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_cache_hits_total",
			Help: "Recommendation requests served from cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_cache_misses_total",
			Help: "Recommendation requests that had to be computed.",
		}),
		DegradedResponses: factory.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_degraded_total",
			Help: "Responses served without the full re-ranking pass.",
		}),
		FallbackResponses: factory.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_popularity_fallback_total",
			Help: "Responses served from the popularity fallback.",
		}),
		Interactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interactions_recorded_total",
			Help: "Interaction events appended to the log by kind.",
		}, []string{"kind"}),
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "model_training_runs_total",
			Help: "Training runs by engine and result.",
		}, []string{"engine", "result"}),
		TrainingLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_training_loss",
			Help: "Final loss of the last successful training run.",
		}),
		TrainingEpochs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_training_epochs",
			Help: "Epochs taken by the last successful training run.",
		}),
	}
}
