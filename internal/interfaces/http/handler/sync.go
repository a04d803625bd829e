package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/reconcile"
	"github.com/storefront/backend/internal/domain/erp"
	domainsync "github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// SyncHandler exposes the manual sync trigger and run history
type SyncHandler struct {
	BaseHandler
	reconciler *reconcile.Reconciler
	runs       domainsync.RunRepository
	logger     *zap.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(reconciler *reconcile.Reconciler, runs domainsync.RunRepository, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		reconciler: reconciler,
		runs:       runs,
		logger:     logger,
	}
}

// RegisterRoutes registers sync routes
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync/:kind", h.TriggerSync)
	rg.GET("/sync/runs", h.ListRuns)
}

// SyncRunResponse is the API shape of a reconciliation run
type SyncRunResponse struct {
	ID            string                `json:"id"`
	Kind          string                `json:"kind"`
	Status        string                `json:"status"`
	Trigger       string                `json:"trigger"`
	Created       int                   `json:"created"`
	Updated       int                   `json:"updated"`
	Skipped       int                   `json:"skipped"`
	Errored       int                   `json:"errored"`
	Errors        []domainsync.RunError `json:"errors"`
	FailureReason string                `json:"failure_reason,omitempty"`
	StartedAt     time.Time             `json:"started_at"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}

func toSyncRunResponse(run *domainsync.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID.String(),
		Kind:          run.Kind.String(),
		Status:        string(run.Status),
		Trigger:       string(run.Trigger),
		Created:       run.Created,
		Updated:       run.Updated,
		Skipped:       run.Skipped,
		Errored:       run.Errored,
		Errors:        run.Errors,
		FailureReason: run.FailureReason,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
	}
}

// TriggerSync runs a full reconciliation pass for the named kind and
// returns the run summary. Responds 409 when a run of the same kind is
// already in flight.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	kind, ok := parseKind(c.Param("kind"))
	if !ok {
		h.BadRequest(c, "Unknown sync kind, expected 'items' or 'customers'")
		return
	}

	run, err := h.reconciler.Reconcile(c.Request.Context(), kind, reconcile.Options{
		Trigger: domainsync.TriggerManual,
	})
	if err != nil && run == nil {
		h.HandleDomainError(c, err)
		return
	}

	// A failed run is still a result: the summary carries the failure
	// reason and whatever counts accumulated before the abort.
	h.Success(c, toSyncRunResponse(run))
}

// ListRuns returns the run history, newest first
func (h *SyncHandler) ListRuns(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid pagination parameters")
		return
	}
	req.Normalize()

	runs, total, err := h.runs.List(c.Request.Context(), req.Page, req.PageSize)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	out := make([]SyncRunResponse, len(runs))
	for i, run := range runs {
		out[i] = toSyncRunResponse(run)
	}
	h.SuccessWithMeta(c, out, total, req.Page, req.PageSize)
}

func parseKind(raw string) (erp.RecordKind, bool) {
	switch strings.ToLower(raw) {
	case "items", "item":
		return erp.KindItem, true
	case "customers", "customer", "contacts", "contact":
		return erp.KindContact, true
	default:
		return "", false
	}
}
