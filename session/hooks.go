package session

import (
	"context"
	"fmt"
)

// Event names a lifecycle point of an instance.
type Event uint8

// Lifecycle events, in the order flush and commit fire them.
const (
	PreValidate Event = iota + 1
	PostValidate
	PreSave
	PostSave
	PreDelete
	PostDelete
	PostCommit
)

var eventNames = [...]string{
	PreValidate:  "pre_validate",
	PostValidate: "post_validate",
	PreSave:      "pre_save",
	PostSave:     "post_save",
	PreDelete:    "pre_delete",
	PostDelete:   "post_delete",
	PostCommit:   "post_commit",
}

func (e Event) String() string {
	if int(e) < len(eventNames) && eventNames[e] != "" {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", e)
}

// Hooks receives lifecycle events. An error returned for a pre event
// aborts the operation; errors of PostCommit are logged only.
type Hooks interface {
	Fire(ctx context.Context, ev Event, s *Session, inst *Instance) error
}

// HooksFunc adapts a function to Hooks.
type HooksFunc func(ctx context.Context, ev Event, s *Session, inst *Instance) error

// Fire returns f(ctx, ev, s, inst).
func (f HooksFunc) Fire(ctx context.Context, ev Event, s *Session, inst *Instance) error {
	return f(ctx, ev, s, inst)
}

type noHooks struct{}

func (noHooks) Fire(context.Context, Event, *Session, *Instance) error { return nil }
