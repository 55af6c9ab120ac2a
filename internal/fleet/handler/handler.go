// Package handler exposes the fleet services over HTTP.
package handler

import (
	"errors"
	"io"
	"net/http"

	"dispatch_backend/internal/fleet/assignment"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/profiles"
	"dispatch_backend/internal/fleet/recurring"
	"dispatch_backend/internal/fleet/risk"
	"dispatch_backend/internal/fleet/scheduling"
	"dispatch_backend/platform/httpkit"
	"dispatch_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidID      = "invalid id"
)

// Services groups the fleet services the handler calls.
// Kept as a struct to avoid long parameter lists at call sites.
type Services struct {
	Lifecycle  *lifecycle.Service
	Assignment *assignment.Service
	Risk       *risk.Monitor
	Recurring  *recurring.Service
	Profiles   *profiles.Service
	Scheduling *scheduling.Service
}

// Handler handles HTTP requests for the fleet.
type Handler struct {
	svc Services
	val *validator.Validator
}

// New creates a fleet handler.
func New(svc Services, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterDispatcherRoutes mounts the routes that manage the fleet.
func (h *Handler) RegisterDispatcherRoutes(rg *gin.RouterGroup) {
	rg.GET("/jobs", h.ListJobs)
	rg.POST("/jobs", h.CreateJob)
	rg.GET("/jobs/:id", h.GetJob)
	rg.PATCH("/jobs/:id", h.UpdateJob)
	rg.DELETE("/jobs/:id", h.DeleteJob)
	rg.POST("/jobs/:id/assign", h.AssignJob)
	rg.POST("/jobs/:id/unassign", h.UnassignJob)
	rg.POST("/jobs/:id/tokens", h.IssueToken)
	rg.DELETE("/jobs/:id/tokens/:kind", h.RevokeToken)
	rg.POST("/jobs/:id/schedule-suggestions", h.SuggestTimes)
	rg.POST("/jobs/:id/proposal", h.ProposeForJob)
	rg.POST("/jobs/:id/proposal/confirm", h.ConfirmProposal)
	rg.DELETE("/jobs/:id/proposal", h.DeclineProposal)

	rg.GET("/proposals", h.ListProposals)
	rg.POST("/proposals/batch", h.ProposeBatch)
	rg.POST("/proposals/batch/confirm", h.ConfirmBatch)

	rg.GET("/technicians", h.ListTechnicians)
	rg.POST("/technicians", h.CreateTechnician)
	rg.GET("/technicians/:id", h.GetTechnician)
	rg.POST("/technicians/:id/unavailable", h.MarkUnavailable)
	rg.POST("/technicians/:id/available", h.MarkAvailable)
	rg.GET("/technicians/:id/route/proposal", h.ProposeRoute)
	rg.PUT("/technicians/:id/route", h.ConfirmRoute)

	rg.GET("/risk-alerts", h.ListAlerts)
	rg.DELETE("/risk-alerts/:id", h.DismissAlert)

	rg.GET("/contracts", h.ListContracts)
	rg.POST("/contracts", h.CreateContract)
	rg.GET("/contracts/:id", h.GetContract)
	rg.DELETE("/contracts/:id", h.DeactivateContract)
	rg.POST("/contracts/generate", h.GenerateRecurring)

	rg.GET("/profile-changes", h.ListProfileChanges)
	rg.GET("/profile-changes/:id", h.GetProfileChange)
	rg.POST("/profile-changes/:id/approve", h.ApproveProfileChange)
	rg.POST("/profile-changes/:id/reject", h.RejectProfileChange)
}

// RegisterFieldRoutes mounts the routes technicians use from the field.
func (h *Handler) RegisterFieldRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs/:id/status", h.TransitionStatus)
	rg.POST("/jobs/:id/breaks/start", h.StartBreak)
	rg.POST("/jobs/:id/breaks/end", h.EndBreak)
	rg.PUT("/technicians/:id/location", h.UpdateLocation)
	rg.POST("/profile-changes", h.SubmitProfileChange)
}

// RegisterPublicRoutes mounts the capability-link routes.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/track/:token", h.PublicTracking)
	rg.GET("/track/:token/qr", h.TrackingQRCode)
	rg.GET("/triage/:token", h.PublicTriage)
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes the JSON body into req and validates it.
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	return !httpkit.HandleError(c, h.val.Check(req))
}

// bindOptional is bind for endpoints whose body may be empty.
func (h *Handler) bindOptional(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	return !httpkit.HandleError(c, h.val.Check(req))
}

// scoped resolves the caller's company and the :id path parameter.
func scoped(c *gin.Context) (companyID, id uuid.UUID, ok bool) {
	companyID, ok = httpkit.MustGetCompanyID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok = pathID(c, "id")
	return companyID, id, ok
}
