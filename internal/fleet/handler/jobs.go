package handler

import (
	"context"
	"net/http"
	"time"

	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListJobs handles GET /api/v1/fleet/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	var req transport.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if raw := c.Query("technicianId"); raw != "" {
		techID, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "technicianId must be a valid id")
			return
		}
		req.TechnicianID = &techID
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}

	jobs, err := h.svc.Lifecycle.ListJobs(c.Request.Context(), companyID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": jobs})
}

// CreateJob handles POST /api/v1/fleet/jobs
func (h *Handler) CreateJob(c *gin.Context) {
	var req transport.CreateJobRequest
	if !h.bind(c, &req) {
		return
	}
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}

	job, err := h.svc.Lifecycle.CreateJob(c.Request.Context(), companyID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, job)
}

// GetJob handles GET /api/v1/fleet/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	job, err := h.svc.Lifecycle.GetJob(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// UpdateJob handles PATCH /api/v1/fleet/jobs/:id
func (h *Handler) UpdateJob(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.UpdateJobRequest
	if !h.bind(c, &req) {
		return
	}
	job, err := h.svc.Lifecycle.UpdateJob(c.Request.Context(), companyID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// DeleteJob handles DELETE /api/v1/fleet/jobs/:id
func (h *Handler) DeleteJob(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.Lifecycle.DeleteJob(c.Request.Context(), companyID, id)) {
		return
	}
	httpkit.NoContent(c)
}

// AssignJob handles POST /api/v1/fleet/jobs/:id/assign
func (h *Handler) AssignJob(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.AssignJobRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.Lifecycle.AssignJob(c.Request.Context(), companyID, id, req.TechnicianID,
		lifecycle.AssignOptions{AllowInterruption: req.AllowInterruption})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

// UnassignJob handles POST /api/v1/fleet/jobs/:id/unassign
func (h *Handler) UnassignJob(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.UnassignJobRequest
	if !h.bind(c, &req) {
		return
	}
	job, err := h.svc.Lifecycle.UnassignJob(c.Request.Context(), companyID, id, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// TransitionStatus handles POST /api/v1/fleet/jobs/:id/status
func (h *Handler) TransitionStatus(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.TransitionRequest
	if !h.bind(c, &req) {
		return
	}
	job, err := h.svc.Lifecycle.TransitionStatus(c.Request.Context(), companyID, id, req.Status)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// StartBreak handles POST /api/v1/fleet/jobs/:id/breaks/start
func (h *Handler) StartBreak(c *gin.Context) {
	h.breakAction(c, h.svc.Lifecycle.StartBreak)
}

// EndBreak handles POST /api/v1/fleet/jobs/:id/breaks/end
func (h *Handler) EndBreak(c *gin.Context) {
	h.breakAction(c, h.svc.Lifecycle.EndBreak)
}

func (h *Handler) breakAction(c *gin.Context, action func(context.Context, uuid.UUID, uuid.UUID, *time.Time) (domain.Job, error)) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.BreakRequest
	if !h.bindOptional(c, &req) {
		return
	}
	job, err := action(c.Request.Context(), companyID, id, req.At)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// IssueToken handles POST /api/v1/fleet/jobs/:id/tokens
func (h *Handler) IssueToken(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.IssueTokenRequest
	if !h.bind(c, &req) {
		return
	}
	token, err := h.svc.Lifecycle.IssueToken(c.Request.Context(), companyID, id, req.Kind)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, token)
}

// RevokeToken handles DELETE /api/v1/fleet/jobs/:id/tokens/:kind
func (h *Handler) RevokeToken(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	kind := domain.TokenKind(c.Param("kind"))
	if !kind.Valid() {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "kind must be tracking or triage")
		return
	}
	if httpkit.HandleError(c, h.svc.Lifecycle.RevokeToken(c.Request.Context(), companyID, id, kind)) {
		return
	}
	httpkit.NoContent(c)
}

// SuggestTimes handles POST /api/v1/fleet/jobs/:id/schedule-suggestions
func (h *Handler) SuggestTimes(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.SuggestTimesRequest
	if !h.bindOptional(c, &req) {
		return
	}
	out, err := h.svc.Scheduling.SuggestTimes(c.Request.Context(), companyID, id, req.ExcludedTimes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, out)
}
