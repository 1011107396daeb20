package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/internal/database"
	"github.com/lernia/lernia/internal/handlers"
	"github.com/lernia/lernia/internal/messaging"
	"github.com/lernia/lernia/internal/middleware"
	"github.com/lernia/lernia/internal/services"
	"github.com/lernia/lernia/internal/validation"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	consumer *messaging.Consumer
	registry *prometheus.Registry
	router   *gin.Engine

	consumerCancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config:   cfg,
		logger:   setupLogger(cfg),
		registry: prometheus.NewRegistry(),
	}

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	app.services = services.New(cfg, db, app.registry, app.logger)
	app.handlers = handlers.New(app.logger, app.services)

	validator, err := validation.NewEventValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile event schemas: %w", err)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		app.consumer = messaging.NewConsumer(&cfg.Kafka, app.services.Engine, validator, app.logger)
		ctx, cancel := context.WithCancel(context.Background())
		app.consumerCancel = cancel
		app.consumer.Start(ctx)
	} else {
		app.logger.Warn("No kafka brokers configured, event ingestion disabled")
	}

	// Train the first snapshot in the background; requests served before it
	// lands fall back to popularity ranking.
	go func() {
		if _, err := app.services.Training.Retrain(context.Background(), ""); err != nil {
			app.logger.WithError(err).Warn("Initial model training failed, serving popularity fallback")
		}
	}()

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.consumer != nil {
		a.consumerCancel()
		if err := a.consumer.Stop(); err != nil {
			a.logger.WithError(err).Warn("Error stopping kafka consumer")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	router.GET("/health", a.handlers.Health.Check)

	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(
			promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		))
	}

	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))

		api.GET("/recommendations/:userId", a.handlers.Recommendation.Get)
		api.POST("/interactions", a.handlers.Interaction.Record)

		admin := api.Group("/admin")
		{
			admin.Use(middleware.RequireRole("admin"))
			admin.POST("/retrain", a.handlers.Admin.Retrain)
			admin.GET("/retrain/:jobId", a.handlers.Admin.GetJob)
		}
	}

	a.router = router
}
