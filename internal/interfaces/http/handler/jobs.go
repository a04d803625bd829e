package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/jobs"
	domainsync "github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// JobsHandler exposes the operator view of the push-job ledger
type JobsHandler struct {
	BaseHandler
	service *jobs.Service
	logger  *zap.Logger
}

// NewJobsHandler creates a new JobsHandler
func NewJobsHandler(service *jobs.Service, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers job routes
func (h *JobsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/jobs", h.ListJobs)
	rg.POST("/jobs/:id/retry", h.RetryJob)
	rg.POST("/jobs/retry-dead", h.RetryAllDead)
}

// JobResponse is the API shape of a push job
type JobResponse struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	EntityID      string     `json:"entity_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toJobResponse(job *domainsync.Job) JobResponse {
	return JobResponse{
		ID:            job.ID.String(),
		Type:          string(job.Type),
		EntityID:      job.EntityID.String(),
		Status:        string(job.Status),
		Attempts:      job.Attempts,
		MaxAttempts:   job.MaxAttempts,
		LastError:     job.LastError,
		NextRetryAt:   job.NextRetryAt,
		LastAttemptAt: job.LastAttemptAt,
		CompletedAt:   job.CompletedAt,
		CreatedAt:     job.CreatedAt,
	}
}

// jobListRequest filters the job list by status
type jobListRequest struct {
	dto.ListRequest
	Status string `form:"status"`
}

// ListJobs returns jobs filtered by status, newest first. Defaults to the
// operator board of terminally failed jobs.
func (h *JobsHandler) ListJobs(c *gin.Context) {
	req := jobListRequest{Status: string(domainsync.JobStatusDead)}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	req.Normalize()

	status := domainsync.JobStatus(req.Status)
	switch status {
	case domainsync.JobStatusPending, domainsync.JobStatusProcessing,
		domainsync.JobStatusCompleted, domainsync.JobStatusFailed, domainsync.JobStatusDead:
	default:
		h.BadRequest(c, "Unknown job status")
		return
	}

	list, total, err := h.service.List(c.Request.Context(), status, req.Page, req.PageSize)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	out := make([]JobResponse, len(list))
	for i, job := range list {
		out[i] = toJobResponse(job)
	}
	h.SuccessWithMeta(c, out, total, req.Page, req.PageSize)
}

// RetryJob requeues a terminally failed or crash-wedged job, bypassing backoff
func (h *JobsHandler) RetryJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID")
		return
	}

	job, err := h.service.Retry(c.Request.Context(), jobID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.logger.Info("Job requeued by operator",
		zap.String("job_id", jobID.String()),
		zap.String("type", string(job.Type)))
	h.Success(c, toJobResponse(job))
}

// RetryAllDead requeues every terminally failed job
func (h *JobsHandler) RetryAllDead(c *gin.Context) {
	requeued, err := h.service.RetryAllDead(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, gin.H{"requeued": requeued})
}
