package drivers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/middleware"
)

// Handler handles HTTP requests for driver availability
type Handler struct {
	service *Service
}

// NewHandler creates a new drivers handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// UpdateLocation handles the driver location heartbeat
func (h *Handler) UpdateLocation(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var update LocationUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Heartbeat(c.Request.Context(), driverID, update); err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to update location")
		return
	}

	common.SuccessResponse(c, gin.H{"updated": true})
}

// Reconcile handles a request to recompute the caller's busy flag from
// their active rides
func (h *Handler) Reconcile(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	busy, err := h.service.Reconcile(c.Request.Context(), driverID)
	if err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to reconcile driver")
		return
	}

	common.SuccessResponse(c, gin.H{"is_busy": busy})
}

// GoOnline handles a driver coming online
func (h *Handler) GoOnline(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.service.GoOnline(c.Request.Context(), driverID); err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to go online")
		return
	}

	common.SuccessResponse(c, gin.H{"online": true})
}

// GoOffline handles a driver going offline
func (h *Handler) GoOffline(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.service.GoOffline(c.Request.Context(), driverID); err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to go offline")
		return
	}

	common.SuccessResponse(c, gin.H{"online": false})
}
