package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storefront/backend/internal/application/jobs"
	"github.com/storefront/backend/internal/application/webhook"
	"github.com/storefront/backend/internal/infrastructure/scheduler"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// recentEventLimit caps the event slice on the status endpoint
const recentEventLimit = 50

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping() error
}

// StatusHandler exposes the read-only operational surface
type StatusHandler struct {
	BaseHandler
	orchestrator *scheduler.Orchestrator
	jobs         *jobs.Service
	webhookStats *webhook.CallStats
	apiStats     *webhook.CallStats
	events       *webhook.EventLog
	db           Pinger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(
	orchestrator *scheduler.Orchestrator,
	jobService *jobs.Service,
	webhookStats *webhook.CallStats,
	apiStats *webhook.CallStats,
	events *webhook.EventLog,
	db Pinger,
) *StatusHandler {
	return &StatusHandler{
		orchestrator: orchestrator,
		jobs:         jobService,
		webhookStats: webhookStats,
		apiStats:     apiStats,
		events:       events,
		db:           db,
	}
}

// RegisterRoutes registers status routes
func (h *StatusHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.GetStatus)
}

// StatusResponse aggregates the operational snapshot
type StatusResponse struct {
	Scheduler scheduler.Status      `json:"scheduler"`
	Webhooks  webhook.StatsSnapshot `json:"webhooks"`
	APICalls  webhook.StatsSnapshot `json:"api_calls"`
	Jobs      map[string]int64      `json:"jobs"`
	Events    []webhook.Event       `json:"events"`
}

// GetStatus returns the operating mode, call tallies, job counts, and the
// recent webhook event stream. Purely observational.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	counts, err := h.jobs.CountByStatus(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	jobCounts := make(map[string]int64, len(counts))
	for status, n := range counts {
		jobCounts[string(status)] = n
	}

	h.Success(c, StatusResponse{
		Scheduler: h.orchestrator.Status(),
		Webhooks:  h.webhookStats.Snapshot(),
		APICalls:  h.apiStats.Snapshot(),
		Jobs:      jobCounts,
		Events:    h.events.Recent(recentEventLimit),
	})
}

// Health answers liveness probes, checking store reachability
func (h *StatusHandler) Health(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(dto.ErrCodeUpstreamUnavailable, "Database unreachable"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
