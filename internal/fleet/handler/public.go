package handler

import (
	"net/http"

	"dispatch_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// PublicTracking handles GET /api/v1/public/track/:token
func (h *Handler) PublicTracking(c *gin.Context) {
	view, err := h.svc.Lifecycle.PublicTrackingView(c.Request.Context(), c.Param("token"))
	if httpkit.HandleError(c, err) {
		return
	}
	c.Header("Cache-Control", "no-store")
	httpkit.OK(c, view)
}

// TrackingQRCode handles GET /api/v1/public/track/:token/qr
func (h *Handler) TrackingQRCode(c *gin.Context) {
	png, err := h.svc.Lifecycle.TrackingQRCode(c.Request.Context(), c.Param("token"))
	if httpkit.HandleError(c, err) {
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// PublicTriage handles GET /api/v1/public/triage/:token
func (h *Handler) PublicTriage(c *gin.Context) {
	view, err := h.svc.Lifecycle.PublicTriageView(c.Request.Context(), c.Param("token"))
	if httpkit.HandleError(c, err) {
		return
	}
	c.Header("Cache-Control", "no-store")
	httpkit.OK(c, view)
}
