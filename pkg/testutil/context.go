package testutil

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"foodlink/pkg/domain"
	"foodlink/pkg/requestcontext"
)

// NewActor returns an authenticated actor with a fresh id holding roles.
func NewActor(roles ...domain.Role) domain.Actor {
	return domain.Actor{UserID: domain.UserID(uuid.New()), Roles: domain.NewRoleSet(roles...)}
}

// WithActor sets the authenticated caller on the request, as the auth
// middleware would.
func WithActor(req *http.Request, actor domain.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithTime pins the request clock.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// ActorContext builds a service-level context carrying actor and clock.
func ActorContext(actor domain.Actor, now time.Time) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actor)
	return requestcontext.WithTime(ctx, now)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
