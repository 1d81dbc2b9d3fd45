package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-board/pkg/log"
	"github.com/weiawesome/wes-board/pkg/middleware"
	"github.com/weiawesome/wes-board/pkg/response"
	"github.com/weiawesome/wes-board/realtime-service/internal/audit"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
	"github.com/weiawesome/wes-board/realtime-service/internal/service"
)

// EmitRequest is the body of a server-initiated emit.
type EmitRequest struct {
	Event string          `json:"event" binding:"required"`
	Data  json.RawMessage `json:"data"`
}

// Handler serves the REST side of the realtime service.
type Handler struct {
	service        service.RealtimeService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(svc service.RealtimeService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        svc,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		projects := api.Group("/projects/:projectId", h.authMiddleware.RequireAuth())
		{
			projects.POST("/events", h.EmitEvent)
			projects.GET("/presence", h.GetPresence)
		}
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// EmitEvent pushes an event to everyone in a project room.
func (h *Handler) EmitEvent(c *gin.Context) {
	projectID := c.Param("projectId")
	userID := middleware.GetUserID(c)
	ctx := log.WithUser(log.WithStr(c.Request.Context(), log.FieldProjectID, projectID), userID)
	l := log.Ctx(ctx)

	if !h.authorize(ctx, c, userID, projectID) {
		return
	}

	var req EmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind emit request")
		response.BadRequest(c, "event is required")
		return
	}

	var data interface{}
	if len(req.Data) > 0 {
		data = req.Data
	}

	if err := h.service.EmitToProject(ctx, projectID, req.Event, data); err != nil {
		if errors.Is(err, service.ErrProjectRequired) || errors.Is(err, service.ErrEventRequired) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldEvent, req.Event).Msg("failed to emit event")
		response.InternalError(c, "failed to emit event")
		return
	}

	audit.LogTarget(ctx, audit.ActionEmit, userID, projectID, "emitted "+req.Event)
	response.Accepted(c, gin.H{"projectId": projectID, "event": req.Event})
}

// GetPresence returns how many connections on this node are in the room.
func (h *Handler) GetPresence(c *gin.Context) {
	projectID := c.Param("projectId")
	userID := middleware.GetUserID(c)
	ctx := log.WithUser(log.WithStr(c.Request.Context(), log.FieldProjectID, projectID), userID)
	if !h.authorize(ctx, c, userID, projectID) {
		return
	}
	response.Success(c, gin.H{"projectId": projectID, "connections": h.service.PresenceCount(projectID)})
}

// authorize applies the room policy to the caller and writes the error
// response when it fails.
func (h *Handler) authorize(ctx context.Context, c *gin.Context, userID, projectID string) bool {
	err := h.service.AuthorizeProject(ctx, &domain.Identity{ID: userID}, projectID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrForbidden):
		audit.LogTarget(ctx, audit.ActionEmitDenied, userID, projectID, "project access denied")
		response.Forbidden(c, err.Error())
	default:
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to authorize project access")
		response.InternalError(c, "failed to authorize project access")
	}
	return false
}
