// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets values; services read them without importing net/http.
// Tests inject fixed times and actors the same way.
package requestcontext

import (
	"context"
	"time"

	id "taskstream/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorKey       struct{}
	sessionIDKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyActor     = actorKey{}
	ContextKeySessionID = sessionIDKey{}
	ContextKeyRequestID = requestIDKey{}
)

// WithActor stores the acting user on the context.
func WithActor(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// Actor returns the acting user, or the zero UserID when unauthenticated.
func Actor(ctx context.Context) id.UserID {
	userID, _ := ctx.Value(actorKey{}).(id.UserID)
	return userID
}

// WithSessionID stores the subscriber session on the context.
func WithSessionID(ctx context.Context, sessionID id.SessionID) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionID returns the subscriber session, or the zero SessionID.
func SessionID(ctx context.Context) id.SessionID {
	sessionID, _ := ctx.Value(sessionIDKey{}).(id.SessionID)
	return sessionID
}

// WithRequestID stores the correlation id on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation id, or "" when none was set.
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// WithTime pins the request time, primarily for tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time when present, otherwise wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}
