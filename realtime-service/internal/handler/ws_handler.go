package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	pkglog "github.com/weiawesome/wes-board/pkg/log"
	"github.com/weiawesome/wes-board/pkg/response"
	"github.com/weiawesome/wes-board/realtime-service/internal/audit"
	"github.com/weiawesome/wes-board/realtime-service/internal/config"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
	"github.com/weiawesome/wes-board/realtime-service/internal/hub"
	"github.com/weiawesome/wes-board/realtime-service/internal/relay"
	"github.com/weiawesome/wes-board/realtime-service/internal/service"
)

// Authenticator resolves the identity behind a handshake request.
type Authenticator interface {
	AuthenticateRequest(r *http.Request) (*domain.Identity, error)
}

// WSHandler accepts authenticated WebSocket connections and routes their
// frames to the realtime service.
type WSHandler struct {
	hub      *hub.Hub
	service  service.RealtimeService
	authn    Authenticator
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, svc service.RealtimeService, authn Authenticator, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		authn:   authn,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(wsCfg.AllowedOrigins),
		},
	}
}

// RegisterRoutes registers the socket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates the handshake and upgrades it. A request
// that fails authentication never becomes a connection.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := pkglog.Ctx(c.Request.Context())

	identity, err := h.authn.AuthenticateRequest(c.Request)
	if err != nil {
		audit.LogWithDetail(c.Request.Context(), audit.ActionAuthFailed, "", err.Error(), "websocket handshake rejected")
		if errors.Is(err, domain.ErrLookup) {
			response.Error(c, http.StatusUnauthorized, response.CodeUserNotFound, "user not found")
			return
		}
		response.Error(c, http.StatusUnauthorized, response.CodeAuthentication, "authentication error")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), identity, h.hub, conn, h.wsCfg)
	c.Set(pkglog.FieldUserID, identity.ID)

	// The request context ends with this handler; the connection outlives it.
	connCtx := pkglog.WithUser(pkglog.WithStr(context.Background(), pkglog.FieldConnectionID, client.ID), identity.ID)

	client.SetDisconnectHandler(func(cl *hub.Client) {
		h.service.HandleDisconnect(connCtx, cl)
	})
	h.service.HandleConnect(connCtx, client)

	go client.WritePump()
	go client.ReadPump(func(cl *hub.Client, message []byte) {
		h.handleMessage(connCtx, cl, message)
	})
}

func (h *WSHandler) handleMessage(ctx context.Context, c *hub.Client, message []byte) {
	var frame domain.Frame
	if err := json.Unmarshal(message, &frame); err != nil || frame.Event == "" {
		h.sendError(c, response.CodeBadRequest, "invalid message format")
		return
	}

	switch frame.Event {
	case domain.EventJoinProject:
		projectID, ok := domain.ProjectRef(frame.Data)
		if !ok {
			h.sendError(c, response.CodeBadRequest, "invalid join-project message")
			return
		}
		if err := h.service.HandleJoin(ctx, c, projectID); err != nil {
			h.sendServiceError(c, frame.Event, err)
		}

	case domain.EventLeaveProject:
		projectID, ok := domain.ProjectRef(frame.Data)
		if !ok {
			h.sendError(c, response.CodeBadRequest, "invalid leave-project message")
			return
		}
		h.service.HandleLeave(ctx, c, projectID)

	case domain.EventPing:
		pong, _ := domain.EncodeFrame(domain.EventPong, nil)
		h.hub.SendTo(c, pong)

	default:
		if err := h.service.HandleEvent(ctx, c, frame.Event, frame.Data); err != nil {
			h.sendServiceError(c, frame.Event, err)
		}
	}
}

func (h *WSHandler) sendServiceError(c *hub.Client, event string, err error) {
	switch {
	case errors.Is(err, relay.ErrUnknownEvent):
		h.sendError(c, response.CodeBadRequest, "unknown event")
	case errors.Is(err, relay.ErrInvalidPayload), errors.Is(err, service.ErrProjectRequired):
		h.sendError(c, response.CodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, service.ErrNotJoined):
		h.sendError(c, response.CodeForbidden, err.Error())
	default:
		l := c.Logger()
		l.Error().Err(err).Str(pkglog.FieldEvent, event).Msg("failed to handle event")
		h.sendError(c, response.CodeInternalError, "failed to handle "+event)
	}
}

func (h *WSHandler) sendError(c *hub.Client, code, message string) {
	h.hub.SendTo(c, domain.NewErrorFrame(code, message))
}

// originChecker allows every origin when none are configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
