package session

import (
	"context"

	"github.com/KipianiNikoloz/blazeorm"
)

type ctxKey struct{}

// NewContext returns a copy of ctx bound to s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session bound to ctx. It fails with a
// NoActiveSessionError when none is bound or the bound session is closed.
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := fromContext(ctx)
	if !ok {
		return nil, &blazeorm.NoActiveSessionError{}
	}
	return s, nil
}

func fromContext(ctx context.Context) (*Session, bool) {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	if s == nil || s.checkOpen() != nil {
		return nil, false
	}
	return s, true
}
