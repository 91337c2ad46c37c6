package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role enumerates the actor roles known to the finance core.
type Role string

const (
	RoleMaster       Role = "master"
	RoleCollaborator Role = "collaborator"
	RoleSubscriber   Role = "subscriber"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleMaster, RoleCollaborator, RoleSubscriber:
		return true
	}
	return false
}

// Actor identifies the caller as asserted by the upstream gateway.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsMaster reports whether the actor may perform Master-only operations.
func (a Actor) IsMaster() bool {
	return a.Role == RoleMaster
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
