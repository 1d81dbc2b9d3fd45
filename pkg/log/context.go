package log

import (
	"context"

	"github.com/rs/zerolog"
)

type (
	loggerKey struct{}
	userKey   struct{}
)

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithStr narrows the logger in ctx with one more string field.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, Ctx(ctx).With().Str(key, value).Logger())
}

// WithUser tags the logger in ctx with user_id and remembers the user, so
// callers that log on behalf of a user can tell the field is already set.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" || UserID(ctx) == userID {
		return ctx
	}
	ctx = WithStr(ctx, FieldUserID, userID)
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID returns the user the logger in ctx is tagged with, if any.
func UserID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// Ctx returns the logger carried by ctx. A nil or bare context yields the
// global logger.
func Ctx(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return l
		}
	}
	return L()
}
