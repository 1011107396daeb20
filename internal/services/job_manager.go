package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/pkg/models"
)

// Retrain job statuses.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

const jobRetention = 24 * time.Hour

// JobManager runs retrains asynchronously and tracks their status. Job state
// lives in the warm redis tier so any instance can answer status polls, with
// an in-process map as fallback when redis is down.
type JobManager struct {
	training *TrainingService
	client   *redis.Client
	logger   *logrus.Logger

	mu     sync.Mutex
	local  map[uuid.UUID]*models.RetrainJob
	active bool
}

func NewJobManager(training *TrainingService, client *redis.Client, logger *logrus.Logger) *JobManager {
	return &JobManager{
		training: training,
		client:   client,
		logger:   logger,
		local:    make(map[uuid.UUID]*models.RetrainJob),
	}
}

// StartRetrain queues a retrain and returns its handle immediately. Only one
// retrain runs at a time; a second trigger while one is active is rejected.
func (m *JobManager) StartRetrain(ctx context.Context, engine string) (*models.RetrainJob, error) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: a retrain is already running", models.ErrInvalidInput)
	}
	m.active = true
	m.mu.Unlock()

	now := time.Now().UTC()
	job := &models.RetrainJob{
		JobID:     uuid.New(),
		Status:    JobStatusQueued,
		Engine:    engine,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.saveJob(ctx, job)

	// The runner goroutine owns the job struct from here; hand the caller a
	// copy so serializing the handle never races with status updates.
	handle := *job
	go m.run(job)

	return &handle, nil
}

// GetJob returns the current state of a retrain job.
func (m *JobManager) GetJob(ctx context.Context, jobID uuid.UUID) (*models.RetrainJob, error) {
	if m.client != nil {
		data, err := m.client.Get(ctx, jobKey(jobID)).Bytes()
		if err == nil {
			var job models.RetrainJob
			if err := json.Unmarshal(data, &job); err == nil {
				return &job, nil
			}
		} else if err != redis.Nil {
			m.logger.WithError(err).Warn("Job status read from redis failed, using local state")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.local[jobID]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, fmt.Errorf("%w: unknown job %s", models.ErrInvalidInput, jobID)
}

// run executes the training on a background context: an admin disconnecting
// after triggering the retrain must not cancel it.
func (m *JobManager) run(job *models.RetrainJob) {
	ctx := context.Background()

	defer func() {
		m.mu.Lock()
		m.active = false
		m.mu.Unlock()
	}()

	job.Status = JobStatusRunning
	job.UpdatedAt = time.Now().UTC()
	m.saveJob(ctx, job)

	snapshot, err := m.training.Retrain(ctx, job.Engine)
	job.UpdatedAt = time.Now().UTC()
	if err != nil {
		job.Status = JobStatusFailed
		job.ErrorMessage = err.Error()
		m.logger.WithError(err).WithField("job_id", job.JobID).Error("Retrain job failed")
	} else {
		job.Status = JobStatusCompleted
		job.ModelVersion = snapshot.Version
		if snapshot.Collaborative != nil {
			job.Loss = snapshot.Collaborative.Loss()
			job.Epochs = snapshot.Collaborative.Epochs()
		}
		m.logger.WithFields(logrus.Fields{
			"job_id":        job.JobID,
			"model_version": job.ModelVersion,
		}).Info("Retrain job completed")
	}
	m.saveJob(ctx, job)
}

func (m *JobManager) saveJob(ctx context.Context, job *models.RetrainJob) {
	m.mu.Lock()
	copied := *job
	m.local[job.JobID] = &copied
	m.mu.Unlock()

	if m.client == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := m.client.Set(ctx, jobKey(job.JobID), data, jobRetention).Err(); err != nil {
		m.logger.WithError(err).Warn("Job status write to redis failed")
	}
}

func jobKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:retrain:%s", jobID)
}
