package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
	"github.com/weiawesome/wes-board/realtime-service/internal/hub"
)

var (
	ErrProjectRequired = errors.New("project id is required")
	ErrEventRequired   = errors.New("event is required")
	ErrNotJoined       = errors.New("not a member of this project room")
)

// RealtimeService is everything a connection can ask of the relay, plus
// the server-side emit used by the REST API.
type RealtimeService interface {
	HandleConnect(ctx context.Context, client *hub.Client)
	HandleJoin(ctx context.Context, client *hub.Client, projectID string) error
	HandleLeave(ctx context.Context, client *hub.Client, projectID string)
	HandleEvent(ctx context.Context, client *hub.Client, event string, data json.RawMessage) error
	HandleDisconnect(ctx context.Context, client *hub.Client)

	// AuthorizeProject applies the room policy to identity. It returns
	// domain.ErrForbidden on deny and always passes while join
	// authorization is off.
	AuthorizeProject(ctx context.Context, identity *domain.Identity, projectID string) error

	// EmitToProject delivers event to every connection in the project's
	// room on every node.
	EmitToProject(ctx context.Context, projectID, event string, data interface{}) error
	// PresenceCount is the number of this node's connections in the room.
	PresenceCount(projectID string) int
}
