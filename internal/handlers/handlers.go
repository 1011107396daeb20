package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/services"
	"github.com/lernia/lernia/pkg/models"
)

// Handlers groups the HTTP surface.
type Handlers struct {
	Recommendation *RecommendationHandler
	Interaction    *InteractionHandler
	Admin          *AdminHandler
	Health         *HealthHandler
}

func New(logger *logrus.Logger, s *services.Services) *Handlers {
	return &Handlers{
		Recommendation: &RecommendationHandler{logger: logger, engine: s.Engine},
		Interaction:    &InteractionHandler{logger: logger, engine: s.Engine},
		Admin:          &AdminHandler{logger: logger, jobs: s.Jobs},
		Health:         &HealthHandler{logger: logger, registry: s.Registry},
	}
}

// respondError maps the engine's error classes onto HTTP statuses with the
// standard envelope.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"

	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
		code = "INVALID_INPUT"
	case errors.Is(err, models.ErrModelUnavailable):
		status = http.StatusServiceUnavailable
		code = "MODEL_UNAVAILABLE"
	case errors.Is(err, models.ErrDataUnavailable):
		status = http.StatusServiceUnavailable
		code = "DATA_UNAVAILABLE"
	}

	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": err.Error(),
		},
	})
}
