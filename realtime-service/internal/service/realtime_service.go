package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weiawesome/wes-board/pkg/log"
	"github.com/weiawesome/wes-board/realtime-service/internal/access"
	"github.com/weiawesome/wes-board/realtime-service/internal/audit"
	"github.com/weiawesome/wes-board/realtime-service/internal/cluster"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
	"github.com/weiawesome/wes-board/realtime-service/internal/hub"
	"github.com/weiawesome/wes-board/realtime-service/internal/relay"
)

// Options switch on the stricter room policies.
type Options struct {
	// AuthorizeJoin consults the Authorizer on join and only lets members
	// of a room emit to it.
	AuthorizeJoin bool
}

type realtimeService struct {
	hub    *hub.Hub
	relay  *relay.Table
	authz  access.Authorizer
	fanout cluster.Fanout
	opts   Options
}

// NewRealtimeService wires the relay. A nil authz allows every join and a
// nil fanout keeps frames on this node.
func NewRealtimeService(h *hub.Hub, table *relay.Table, authz access.Authorizer, fanout cluster.Fanout, opts Options) RealtimeService {
	if authz == nil {
		authz = access.AllowAll{}
	}
	if fanout == nil {
		fanout = cluster.Noop{}
	}
	return &realtimeService{
		hub:    h,
		relay:  table,
		authz:  authz,
		fanout: fanout,
		opts:   opts,
	}
}

func (s *realtimeService) HandleConnect(ctx context.Context, c *hub.Client) {
	s.hub.Register(c)

	l := c.Logger()
	l.Info().Str(log.FieldUserName, c.Identity.DisplayName()).Msg("user connected")
	audit.Log(ctx, audit.ActionConnect, c.Identity.ID, "realtime connection established")
}

func (s *realtimeService) HandleJoin(ctx context.Context, c *hub.Client, projectID string) error {
	if projectID == "" {
		return ErrProjectRequired
	}

	if err := s.AuthorizeProject(ctx, c.Identity, projectID); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			audit.LogTarget(ctx, audit.ActionJoinDenied, c.Identity.ID, projectID, "project join denied")
		}
		return err
	}

	s.hub.Join(c, projectID)

	l := c.Logger()
	l.Debug().Str(log.FieldProjectID, projectID).Msg("joined project")
	audit.LogTarget(ctx, audit.ActionJoinProject, c.Identity.ID, projectID, "joined project room")
	return nil
}

func (s *realtimeService) AuthorizeProject(ctx context.Context, identity *domain.Identity, projectID string) error {
	if !s.opts.AuthorizeJoin {
		return nil
	}
	ok, err := s.authz.CanJoin(ctx, identity, projectID)
	if err != nil {
		return fmt.Errorf("authorize project: %w", err)
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

func (s *realtimeService) HandleLeave(ctx context.Context, c *hub.Client, projectID string) {
	if projectID == "" {
		return
	}
	s.hub.Leave(c, projectID)

	l := c.Logger()
	l.Debug().Str(log.FieldProjectID, projectID).Msg("left project")
	audit.LogTarget(ctx, audit.ActionLeaveProject, c.Identity.ID, projectID, "left project room")
}

func (s *realtimeService) HandleEvent(ctx context.Context, c *hub.Client, event string, data json.RawMessage) error {
	sender := relay.Sender{ConnectionID: c.ID, Identity: c.Identity}

	outbound, err := s.relay.Dispatch(sender, event, data)
	if err != nil {
		return err
	}

	l := c.Logger()
	for _, out := range outbound {
		if s.opts.AuthorizeJoin && !s.hub.IsMember(c, out.ProjectID) {
			l.Warn().Str(log.FieldProjectID, out.ProjectID).Str(log.FieldEvent, event).Msg("emit to unjoined project dropped")
			return ErrNotJoined
		}

		frame, err := domain.EncodeFrame(out.Event, out.Payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", out.Event, err)
		}

		msg := &hub.RoomMessage{RoomID: out.ProjectID, Message: frame, Exclude: c.ID}
		if s.opts.AuthorizeJoin {
			msg.RequireMember = c.ID
		}
		s.hub.Broadcast(msg)

		if err := s.fanout.Publish(ctx, out.ProjectID, frame); err != nil {
			l.Warn().Err(err).Str(log.FieldProjectID, out.ProjectID).Msg("cluster publish failed")
		}

		l.Debug().Str(log.FieldProjectID, out.ProjectID).Str(log.FieldEvent, out.Event).Msg("event relayed")
	}
	return nil
}

func (s *realtimeService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	s.hub.Unregister(c)

	l := c.Logger()
	l.Info().Str(log.FieldUserName, c.Identity.DisplayName()).Msg("user disconnected")
	audit.Log(ctx, audit.ActionDisconnect, c.Identity.ID, "realtime connection closed")
}

func (s *realtimeService) EmitToProject(ctx context.Context, projectID, event string, data interface{}) error {
	if projectID == "" {
		return ErrProjectRequired
	}
	if event == "" {
		return ErrEventRequired
	}

	frame, err := domain.EncodeFrame(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	s.hub.Broadcast(&hub.RoomMessage{RoomID: projectID, Message: frame})

	if err := s.fanout.Publish(ctx, projectID, frame); err != nil {
		return fmt.Errorf("cluster publish: %w", err)
	}
	return nil
}

func (s *realtimeService) PresenceCount(projectID string) int {
	return s.hub.RoomSize(projectID)
}
