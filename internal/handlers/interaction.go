package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/services"
	"github.com/lernia/lernia/pkg/models"
)

type InteractionHandler struct {
	logger *logrus.Logger
	engine *services.RecommendationEngine
}

// Record serves POST /api/v1/interactions. The append invalidates the
// user's cached recommendations before the response goes out.
func (h *InteractionHandler) Record(c *gin.Context) {
	var req models.InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	interaction := &models.Interaction{
		UserID:     req.UserID,
		ResourceID: req.ResourceID,
		Kind:       models.InteractionKind(req.Kind),
		Rating:     req.Rating,
	}

	if err := h.engine.RecordInteraction(c.Request.Context(), interaction); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":      "recorded",
		"user_id":     interaction.UserID,
		"resource_id": interaction.ResourceID,
		"kind":        interaction.Kind,
	})
}
