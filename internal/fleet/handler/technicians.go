package handler

import (
	"net/http"

	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// ListTechnicians handles GET /api/v1/fleet/technicians
func (h *Handler) ListTechnicians(c *gin.Context) {
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	techs, err := h.svc.Lifecycle.ListTechnicians(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": techs})
}

// CreateTechnician handles POST /api/v1/fleet/technicians
func (h *Handler) CreateTechnician(c *gin.Context) {
	var req transport.CreateTechnicianRequest
	if !h.bind(c, &req) {
		return
	}
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	tech, err := h.svc.Lifecycle.CreateTechnician(c.Request.Context(), companyID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, tech)
}

// GetTechnician handles GET /api/v1/fleet/technicians/:id
func (h *Handler) GetTechnician(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	tech, err := h.svc.Lifecycle.GetTechnician(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, tech)
}

// UpdateLocation handles PUT /api/v1/fleet/technicians/:id/location
func (h *Handler) UpdateLocation(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.UpdateLocationRequest
	if !h.bind(c, &req) {
		return
	}
	tech, err := h.svc.Lifecycle.UpdateTechnicianLocation(c.Request.Context(), companyID, id, req.Location.ToDomain())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, tech)
}

// MarkUnavailable handles POST /api/v1/fleet/technicians/:id/unavailable
func (h *Handler) MarkUnavailable(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.MarkUnavailableRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.Lifecycle.MarkTechnicianUnavailable(c.Request.Context(), companyID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

// MarkAvailable handles POST /api/v1/fleet/technicians/:id/available
func (h *Handler) MarkAvailable(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	tech, err := h.svc.Lifecycle.MarkTechnicianAvailable(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, tech)
}

// ProposeRoute handles GET /api/v1/fleet/technicians/:id/route/proposal
func (h *Handler) ProposeRoute(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	proposal, err := h.svc.Lifecycle.ProposeRoute(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, proposal)
}

// ConfirmRoute handles PUT /api/v1/fleet/technicians/:id/route
func (h *Handler) ConfirmRoute(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	var req transport.ConfirmRouteRequest
	if !h.bind(c, &req) {
		return
	}
	jobs, err := h.svc.Lifecycle.ConfirmRoute(c.Request.Context(), companyID, id, req.OrderedJobIDs, req.ExcludedJobIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": jobs})
}

// ListAlerts handles GET /api/v1/fleet/risk-alerts
func (h *Handler) ListAlerts(c *gin.Context) {
	companyID, ok := httpkit.MustGetCompanyID(c)
	if !ok {
		return
	}
	alerts, err := h.svc.Risk.Alerts(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": alerts})
}

// DismissAlert handles DELETE /api/v1/fleet/risk-alerts/:id where id is the
// technician the alert is about.
func (h *Handler) DismissAlert(c *gin.Context) {
	companyID, id, ok := scoped(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.Risk.Dismiss(c.Request.Context(), companyID, id)) {
		return
	}
	httpkit.NoContent(c)
}
