package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/services"
	"github.com/lernia/lernia/pkg/models"
)

type AdminHandler struct {
	logger *logrus.Logger
	jobs   *services.JobManager
}

type retrainRequest struct {
	Engine string `json:"engine" binding:"omitempty,oneof=factorization neural"`
}

// Retrain serves POST /api/v1/admin/retrain: queues an asynchronous retrain
// and returns the job handle for polling.
func (h *AdminHandler) Retrain(c *gin.Context) {
	var req retrainRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondError(c, h.logger, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	job, err := h.jobs.StartRetrain(c.Request.Context(), req.Engine)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"job_id": job.JobID,
		"engine": job.Engine,
	}).Info("Retrain triggered")

	c.JSON(http.StatusAccepted, job)
}

// GetJob serves GET /api/v1/admin/retrain/:jobId.
func (h *AdminHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: invalid job id", models.ErrInvalidInput))
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, job)
}
