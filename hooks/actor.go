package hooks

import (
	"context"
	"slices"

	"github.com/KipianiNikoloz/blazeorm/session"
)

// Actor identifies who performs the operations of a context.
type Actor interface {
	// ActorID returns the identifier written by Stamp.
	ActorID() string
	// ActorRoles returns the roles checked by HasRole.
	ActorRoles() []string
}

type actorCtxKey struct{}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// ActorFromContext returns the actor of ctx, or nil.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorCtxKey{}).(Actor)
	return a
}

// User is a plain Actor.
type User struct {
	ID    string
	Roles []string
}

// ActorID returns u.ID.
func (u User) ActorID() string { return u.ID }

// ActorRoles returns u.Roles.
func (u User) ActorRoles() []string { return u.Roles }

// RequireActor denies events of contexts without an actor.
func RequireActor() Handler {
	return Func(func(ctx context.Context) error {
		if ActorFromContext(ctx) == nil {
			return Denyf("actor required")
		}
		return Skip
	})
}

// HasRole ends the chain successfully when the actor has one of roles,
// and skips otherwise. It is usually followed by a Deny handler:
//
//	d.OnEntity("Invoice", session.PreDelete, hooks.HasRole("admin"), hooks.Deny("admins only"))
func HasRole(roles ...string) Handler {
	return Func(func(ctx context.Context) error {
		a := ActorFromContext(ctx)
		if a == nil {
			return Skip
		}
		for _, r := range roles {
			if slices.Contains(a.ActorRoles(), r) {
				return Stop
			}
		}
		return Skip
	})
}

// Stamp writes the actor ID into the named field. Register it on PreSave;
// instances without the field and contexts without an actor are skipped.
func Stamp(name string) Handler {
	return func(ctx context.Context, _ *session.Session, inst *session.Instance) error {
		a := ActorFromContext(ctx)
		if a == nil {
			return Skip
		}
		if _, ok := inst.Entity().Field(name); !ok {
			return Skip
		}
		return inst.Set(name, a.ActorID())
	}
}
