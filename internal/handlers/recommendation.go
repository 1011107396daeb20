package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/services"
	"github.com/lernia/lernia/pkg/models"
)

const (
	defaultCount = 10
	maxCount     = 100
)

type RecommendationHandler struct {
	logger *logrus.Logger
	engine *services.RecommendationEngine
}

// Get serves GET /api/v1/recommendations/:userId.
//
// Query parameters: count (default 10, max 100), include_completed, and an
// optional step scope via tags (comma separated), prerequisites and
// difficulty.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: invalid user id", models.ErrInvalidInput))
		return
	}

	count := defaultCount
	if raw := c.Query("count"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil || count <= 0 {
			respondError(c, h.logger, fmt.Errorf("%w: count must be a positive integer", models.ErrInvalidInput))
			return
		}
		if count > maxCount {
			count = maxCount
		}
	}

	step := stepFromQuery(c)

	result, err := h.engine.GetRecommendations(c.Request.Context(), userID, count, step)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func stepFromQuery(c *gin.Context) *models.StepContext {
	step := &models.StepContext{
		Tags:             splitParam(c.Query("tags")),
		Prerequisites:    splitParam(c.Query("prerequisites")),
		Difficulty:       c.Query("difficulty"),
		IncludeCompleted: c.Query("include_completed") == "true",
	}
	if len(step.Tags) == 0 && len(step.Prerequisites) == 0 && step.Difficulty == "" && !step.IncludeCompleted {
		return nil
	}
	return step
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
