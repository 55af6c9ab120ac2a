package handler

import (
	"net/http"

	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// ListContracts handles GET /api/v1/fleet/contracts
func (h *Handler) ListContracts(c *gin.Context) {
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	out, err := h.svc.Recurring.ListContracts(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": out})
}

// CreateContract handles POST /api/v1/fleet/contracts
func (h *Handler) CreateContract(c *gin.Context) {
	var req transport.CreateContractRequest
	if !h.bind(c, &req) {
		return
	}
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	contract, err := h.svc.Recurring.CreateContract(c.Request.Context(), companyID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, contract)
}

// GetContract handles GET /api/v1/fleet/contracts/:id
func (h *Handler) GetContract(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	contract, err := h.svc.Recurring.GetContract(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, contract)
}

// DeactivateContract handles DELETE /api/v1/fleet/contracts/:id
func (h *Handler) DeactivateContract(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	contract, err := h.svc.Recurring.DeactivateContract(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, contract)
}

// GenerateRecurring handles POST /api/v1/fleet/contracts/generate
func (h *Handler) GenerateRecurring(c *gin.Context) {
	var req transport.GenerateRecurringRequest
	if !h.bind(c, &req) {
		return
	}
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	res, err := h.svc.Recurring.Generate(c.Request.Context(), companyID, req.Target)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

// SubmitProfileChange handles POST /api/v1/fleet/profile-changes
func (h *Handler) SubmitProfileChange(c *gin.Context) {
	var req transport.SubmitProfileChangeRequest
	if !h.bind(c, &req) {
		return
	}
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	r, err := h.svc.Profiles.Submit(c.Request.Context(), companyID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, r)
}

// ListProfileChanges handles GET /api/v1/fleet/profile-changes
func (h *Handler) ListProfileChanges(c *gin.Context) {
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	out, err := h.svc.Profiles.ListPending(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": out})
}

// GetProfileChange handles GET /api/v1/fleet/profile-changes/:id
func (h *Handler) GetProfileChange(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	r, err := h.svc.Profiles.Get(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, r)
}

// ApproveProfileChange handles POST /api/v1/fleet/profile-changes/:id/approve.
// A body without changes approves the request as submitted.
func (h *Handler) ApproveProfileChange(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.ReviewProfileChangeRequest
	if !h.bindOptional(c, &req) {
		return
	}
	var approved *domain.ProfileChanges
	if req.Changes != nil {
		changes := req.Changes.ToDomain()
		approved = &changes
	}
	r, tech, err := h.svc.Profiles.Approve(c.Request.Context(), companyID, id, approved, req.Notes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"request": r, "technician": tech})
}

// RejectProfileChange handles POST /api/v1/fleet/profile-changes/:id/reject
func (h *Handler) RejectProfileChange(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.ReviewProfileChangeRequest
	if !h.bindOptional(c, &req) {
		return
	}
	r, err := h.svc.Profiles.Reject(c.Request.Context(), companyID, id, req.Notes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, r)
}
