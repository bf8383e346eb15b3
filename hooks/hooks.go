// Package hooks provides a dispatcher for session lifecycle events with
// global and per-entity handler chains.
//
// Handlers of one event run in registration order, global handlers first.
// Each handler decides how the chain proceeds:
//
//   - nil or Skip: continue with the next handler
//   - Stop: end the chain without error
//   - any other error: end the chain and report the error, which aborts
//     the operation for pre events
//
// Example:
//
//	d := hooks.New().
//	    On(session.PreSave, hooks.Stamp("updated_by")).
//	    OnEntity("Invoice", session.PreDelete, hooks.Deny("invoices are never deleted"))
//	s, err := session.New(adapter, registry, session.WithHooks(d))
package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KipianiNikoloz/blazeorm/session"
)

// Chain decision sentinel errors. Use errors.Is to check for them.
var (
	// Stop may be returned by handlers to end the chain successfully.
	Stop = errors.New("blazeorm/hooks: stop chain")

	// Skip may be returned by handlers to abstain. It behaves like nil.
	Skip = errors.New("blazeorm/hooks: skip handler")

	// ErrDenied is wrapped by the errors of Deny, Denyf and RequireActor.
	ErrDenied = errors.New("blazeorm/hooks: operation denied")
)

// Denyf returns a formatted error wrapping ErrDenied.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, ErrDenied)...)
}

// Handler handles one lifecycle event of an instance.
type Handler func(ctx context.Context, s *session.Session, inst *session.Instance) error

// Dispatcher routes lifecycle events to registered handlers. It implements
// session.Hooks and is safe for concurrent registration and dispatch.
type Dispatcher struct {
	mu     sync.RWMutex
	global map[session.Event][]Handler
	entity map[string]map[session.Event][]Handler
}

// New returns an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		global: make(map[session.Event][]Handler),
		entity: make(map[string]map[session.Event][]Handler),
	}
}

// On registers handlers for ev on every entity.
func (d *Dispatcher) On(ev session.Event, hs ...Handler) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.global[ev] = append(d.global[ev], hs...)
	return d
}

// OnEntity registers handlers for ev on the entity named name.
func (d *Dispatcher) OnEntity(name string, ev session.Event, hs ...Handler) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	byEvent, ok := d.entity[name]
	if !ok {
		byEvent = make(map[session.Event][]Handler)
		d.entity[name] = byEvent
	}
	byEvent[ev] = append(byEvent[ev], hs...)
	return d
}

// Handlers returns the chain fired for ev on the entity named name.
func (d *Dispatcher) Handlers(name string, ev session.Event) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	global, local := d.global[ev], d.entity[name][ev]
	hs := make([]Handler, 0, len(global)+len(local))
	hs = append(hs, global...)
	return append(hs, local...)
}

// Fire runs the chain of ev for inst.
func (d *Dispatcher) Fire(ctx context.Context, ev session.Event, s *session.Session, inst *session.Instance) error {
	return Chain(d.Handlers(inst.Entity().Name, ev)...)(ctx, s, inst)
}

var _ session.Hooks = (*Dispatcher)(nil)

// Chain combines handlers into one, evaluated with the dispatcher rules.
func Chain(hs ...Handler) Handler {
	return func(ctx context.Context, s *session.Session, inst *session.Instance) error {
		for _, h := range hs {
			switch err := h(ctx, s, inst); {
			case err == nil || errors.Is(err, Skip):
			case errors.Is(err, Stop):
				return nil
			default:
				return err
			}
		}
		return nil
	}
}

// When runs h only for instances matching cond.
func When(cond func(*session.Instance) bool, h Handler) Handler {
	return func(ctx context.Context, s *session.Session, inst *session.Instance) error {
		if !cond(inst) {
			return Skip
		}
		return h(ctx, s, inst)
	}
}

// Changed reports whether one of the named fields is dirty.
func Changed(names ...string) func(*session.Instance) bool {
	return func(inst *session.Instance) bool {
		for _, name := range inst.DirtyFields() {
			for _, n := range names {
				if n == name {
					return true
				}
			}
		}
		return false
	}
}

// Deny returns a handler rejecting every event it receives.
func Deny(reason string) Handler {
	return func(_ context.Context, _ *session.Session, inst *session.Instance) error {
		return Denyf("%s: %s", inst, reason)
	}
}

// Func adapts a context-only check to a Handler.
func Func(eval func(context.Context) error) Handler {
	return func(ctx context.Context, _ *session.Session, _ *session.Instance) error {
		return eval(ctx)
	}
}
