package handler

import (
	"dispatch_backend/internal/fleet/assignment"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// ProposeForJob handles POST /api/v1/fleet/jobs/:id/proposal
func (h *Handler) ProposeForJob(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	p, err := h.svc.Assignment.ProposeForJob(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, p)
}

// ConfirmProposal handles POST /api/v1/fleet/jobs/:id/proposal/confirm
func (h *Handler) ConfirmProposal(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.ConfirmProposalRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.Assignment.ConfirmProposal(c.Request.Context(), companyID, id, req.TechnicianID, req.ConfirmInterruption)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

// DeclineProposal handles DELETE /api/v1/fleet/jobs/:id/proposal
func (h *Handler) DeclineProposal(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.Assignment.DeclineProposal(c.Request.Context(), companyID, id)) {
		return
	}
	httpkit.NoContent(c)
}

// ListProposals handles GET /api/v1/fleet/proposals
func (h *Handler) ListProposals(c *gin.Context) {
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	out, err := h.svc.Assignment.ListProposals(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": out})
}

// ProposeBatch handles POST /api/v1/fleet/proposals/batch
func (h *Handler) ProposeBatch(c *gin.Context) {
	var req transport.ProposeBatchRequest
	if !h.bind(c, &req) {
		return
	}
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	batch, err := h.svc.Assignment.ProposeBatch(c.Request.Context(), companyID, req.JobIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"batchId": batch.BatchID, "proposals": batch.Proposals})
}

// ConfirmBatch handles POST /api/v1/fleet/proposals/batch/confirm
func (h *Handler) ConfirmBatch(c *gin.Context) {
	var req transport.ConfirmBatchRequest
	if !h.bind(c, &req) {
		return
	}
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	decisions := make([]assignment.Decision, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		decisions = append(decisions, assignment.Decision{JobID: d.JobID, TechnicianID: d.TechnicianID})
	}
	res, err := h.svc.Assignment.ConfirmCachedBatch(c.Request.Context(), companyID, req.BatchID, decisions)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}
