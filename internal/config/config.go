package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	Mode string `mapstructure:"mode" validate:"oneof=development production test"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		InteractionEvents string `mapstructure:"interaction_events"`
		ResourceUpdates   string `mapstructure:"resource_updates"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string          `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration   `mapstructure:"token_ttl"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RecommendationConfig groups every tunable of the scoring pipeline. The
// defaults below are the values the engine was designed around; they are
// heuristics, not hard-coded law, except where tests pin them (blend weights,
// interaction encoding cap).
type RecommendationConfig struct {
	Features FeatureConfig  `mapstructure:"features"`
	Profile  ProfileConfig  `mapstructure:"profile"`
	Matrix   MatrixConfig   `mapstructure:"matrix"`
	Training TrainingConfig `mapstructure:"training"`
	Hybrid   HybridConfig   `mapstructure:"hybrid"`
	Rerank   RerankConfig   `mapstructure:"rerank"`
	Caching  CachingConfig  `mapstructure:"caching"`
}

type FeatureConfig struct {
	MaxTextFeatures   int     `mapstructure:"max_text_features"`
	TextWeight        float64 `mapstructure:"text_weight"`
	TagWeight         float64 `mapstructure:"tag_weight"`
	CategoricalWeight float64 `mapstructure:"categorical_weight"`
	NumericWeight     float64 `mapstructure:"numeric_weight"`
}

type ProfileConfig struct {
	PreferenceWeight float64 `mapstructure:"preference_weight"`
	HalfLifeDays     float64 `mapstructure:"half_life_days"`
	MaxInteractions  int     `mapstructure:"max_interactions"`
}

type MatrixConfig struct {
	MaxAffinity float64 `mapstructure:"max_affinity"`
}

type TrainingConfig struct {
	Engine              string  `mapstructure:"engine" validate:"oneof=factorization neural"`
	Factors             int     `mapstructure:"factors"`
	LearningRate        float64 `mapstructure:"learning_rate"`
	Regularization      float64 `mapstructure:"regularization"`
	MaxEpochs           int     `mapstructure:"max_epochs"`
	Tolerance           float64 `mapstructure:"tolerance"`
	DivergenceTolerance float64 `mapstructure:"divergence_tolerance"`
	Workers             int     `mapstructure:"workers"`
	NegativeSampleRatio int     `mapstructure:"negative_sample_ratio"`
	HiddenLayers        []int   `mapstructure:"hidden_layers"`
	Seed                int64   `mapstructure:"seed"`
}

type HybridConfig struct {
	ColdStartThreshold int     `mapstructure:"cold_start_threshold" validate:"min=0"`
	ColdContentWeight  float64 `mapstructure:"cold_content_weight" validate:"min=0,max=1"`
	ColdCollabWeight   float64 `mapstructure:"cold_collab_weight" validate:"min=0,max=1"`
	WarmContentWeight  float64 `mapstructure:"warm_content_weight" validate:"min=0,max=1"`
	WarmCollabWeight   float64 `mapstructure:"warm_collab_weight" validate:"min=0,max=1"`
}

type RerankConfig struct {
	MMRLambda          float64       `mapstructure:"mmr_lambda"`
	NoveltyMaxBoost    float64       `mapstructure:"novelty_max_boost"`
	SoftDeadlineMargin time.Duration `mapstructure:"soft_deadline_margin"`
	CandidateMultiple  int           `mapstructure:"candidate_multiple"`
}

type CachingConfig struct {
	RecommendationsTTL time.Duration `mapstructure:"recommendations_ttl"`
	ProfileTTL         time.Duration `mapstructure:"profile_ttl"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.hot.max_retries", 3)
	viper.SetDefault("redis.hot.pool_size", 10)
	viper.SetDefault("redis.hot.timeout", "5s")
	viper.SetDefault("redis.warm.max_retries", 3)
	viper.SetDefault("redis.warm.pool_size", 5)
	viper.SetDefault("redis.warm.timeout", "10s")

	// Kafka defaults
	viper.SetDefault("kafka.topics.interaction_events", "interaction-events")
	viper.SetDefault("kafka.topics.resource_updates", "resource-updates")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("auth.rate_limit.default", 1000)
	viper.SetDefault("auth.rate_limit.window", "1h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Feature vectorizer defaults
	viper.SetDefault("recommendation.features.max_text_features", 1000)
	viper.SetDefault("recommendation.features.text_weight", 0.4)
	viper.SetDefault("recommendation.features.tag_weight", 0.3)
	viper.SetDefault("recommendation.features.categorical_weight", 0.2)
	viper.SetDefault("recommendation.features.numeric_weight", 0.1)

	// User profile defaults
	viper.SetDefault("recommendation.profile.preference_weight", 0.4)
	viper.SetDefault("recommendation.profile.half_life_days", 30.0)
	viper.SetDefault("recommendation.profile.max_interactions", 50)

	// Interaction matrix defaults
	viper.SetDefault("recommendation.matrix.max_affinity", 2.0)

	// Training defaults
	viper.SetDefault("recommendation.training.engine", "factorization")
	viper.SetDefault("recommendation.training.factors", 32)
	viper.SetDefault("recommendation.training.learning_rate", 0.01)
	viper.SetDefault("recommendation.training.regularization", 0.02)
	viper.SetDefault("recommendation.training.max_epochs", 100)
	viper.SetDefault("recommendation.training.tolerance", 1e-4)
	viper.SetDefault("recommendation.training.divergence_tolerance", 0.1)
	viper.SetDefault("recommendation.training.workers", 4)
	viper.SetDefault("recommendation.training.negative_sample_ratio", 4)
	viper.SetDefault("recommendation.training.hidden_layers", []int{64, 32})
	viper.SetDefault("recommendation.training.seed", 42)

	// Hybrid blend defaults
	viper.SetDefault("recommendation.hybrid.cold_start_threshold", 5)
	viper.SetDefault("recommendation.hybrid.cold_content_weight", 0.8)
	viper.SetDefault("recommendation.hybrid.cold_collab_weight", 0.2)
	viper.SetDefault("recommendation.hybrid.warm_content_weight", 0.4)
	viper.SetDefault("recommendation.hybrid.warm_collab_weight", 0.6)

	// Re-ranker defaults
	viper.SetDefault("recommendation.rerank.mmr_lambda", 0.7)
	viper.SetDefault("recommendation.rerank.novelty_max_boost", 0.05)
	viper.SetDefault("recommendation.rerank.soft_deadline_margin", "50ms")
	viper.SetDefault("recommendation.rerank.candidate_multiple", 5)

	// Caching defaults
	viper.SetDefault("recommendation.caching.recommendations_ttl", "15m")
	viper.SetDefault("recommendation.caching.profile_ttl", "5m")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
