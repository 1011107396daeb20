package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/services"
)

type HealthHandler struct {
	logger   *logrus.Logger
	registry *services.ModelRegistry
}

// Check serves GET /health. The service is "ok" once a model snapshot is
// published and "degraded" before that: requests still work but fall back to
// popularity ranking.
func (h *HealthHandler) Check(c *gin.Context) {
	status := "ok"
	modelReady := h.registry.Ready()
	if !modelReady {
		status = "degraded"
	}

	response := gin.H{
		"status":      status,
		"model_ready": modelReady,
		"timestamp":   time.Now().UTC(),
	}

	if snapshot, err := h.registry.Current(); err == nil {
		response["model_version"] = snapshot.Version
		response["trained_at"] = snapshot.TrainedAt
	}

	c.JSON(http.StatusOK, response)
}
