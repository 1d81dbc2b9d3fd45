package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-board/pkg/log"
)

// Audit actions for realtime-service.
const (
	ActionConnect      = "realtime.connect"
	ActionAuthFailed   = "realtime.auth_failed"
	ActionJoinProject  = "realtime.join_project"
	ActionJoinDenied   = "realtime.join_denied"
	ActionLeaveProject = "realtime.leave_project"
	ActionEmit         = "realtime.emit"
	ActionEmitDenied   = "realtime.emit_denied"
	ActionDisconnect   = "realtime.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// entry starts an audit event on the context logger. Anonymous actors
// (failed handshakes) carry no user_id, and a logger already tagged with
// the actor is not tagged twice.
func entry(ctx context.Context, action, userID string) *zerolog.Event {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action)
	if userID != "" && log.UserID(ctx) != userID {
		evt = evt.Str(log.FieldUserID, userID)
	}
	return evt
}

// Log records action by userID.
func Log(ctx context.Context, action, userID, msg string) {
	entry(ctx, action, userID).Msg(msg)
}

// LogTarget records action by userID against a project.
func LogTarget(ctx context.Context, action, userID, projectID, msg string) {
	entry(ctx, action, userID).Str(FieldTargetID, projectID).Msg(msg)
}

// LogWithDetail records action with a free-form detail, usually an error.
func LogWithDetail(ctx context.Context, action, userID, detail, msg string) {
	entry(ctx, action, userID).Str(FieldDetail, detail).Msg(msg)
}
