package session

import (
	"context"
	"fmt"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/query"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
)

// AddMembers links targets to owner through the many-to-many relation
// name. The link rows are written immediately. Loaded collections on both
// sides are updated in place; collections not loaded stay unloaded.
func (s *Session) AddMembers(ctx context.Context, owner *Instance, name string, targets ...*Instance) error {
	rel, err := s.membership(owner, name, targets)
	if err != nil || len(targets) == 0 {
		return err
	}
	var (
		sql     string
		argSets = make([][]any, 0, len(targets))
	)
	for _, t := range targets {
		st, err := query.CompileLink(rel, owner.PK(), t.PK(), s.dialect)
		if err != nil {
			return err
		}
		sql = st.SQL
		argSets = append(argSets, st.Args)
	}
	if _, err := s.execMany(ctx, sql, argSets); err != nil {
		return blazeorm.NewMutationError(owner.entity.Name, "link", err)
	}
	for _, t := range targets {
		owner.addMember(rel.Name, t)
		t.addMember(rel.Inverse.Name, owner)
		s.forget(ctx, t)
	}
	s.forget(ctx, owner)
	return nil
}

// RemoveMembers removes the links between owner and targets.
func (s *Session) RemoveMembers(ctx context.Context, owner *Instance, name string, targets ...*Instance) error {
	rel, err := s.membership(owner, name, targets)
	if err != nil || len(targets) == 0 {
		return err
	}
	keys := make([]any, len(targets))
	for i, t := range targets {
		keys[i] = t.PK()
	}
	st, err := query.CompileUnlink(rel, owner.PK(), keys, s.dialect)
	if err != nil {
		return err
	}
	if _, err := s.Exec(ctx, st); err != nil {
		return blazeorm.NewMutationError(owner.entity.Name, "unlink", err)
	}
	for _, t := range targets {
		owner.removeMember(rel.Name, t)
		t.removeMember(rel.Inverse.Name, owner)
		s.forget(ctx, t)
	}
	s.forget(ctx, owner)
	return nil
}

// ClearMembers removes every link of owner. The collection of owner is
// loaded as empty afterwards, and owner leaves the inverse collections of
// every instance of the session.
func (s *Session) ClearMembers(ctx context.Context, owner *Instance, name string) error {
	rel, err := s.membership(owner, name, nil)
	if err != nil {
		return err
	}
	st, err := query.CompileUnlink(rel, owner.PK(), nil, s.dialect)
	if err != nil {
		return err
	}
	if _, err := s.Exec(ctx, st); err != nil {
		return blazeorm.NewMutationError(owner.entity.Name, "unlink", err)
	}
	owner.resolve(rel, nil)
	for _, t := range s.identity.All(rel.Target) {
		t.removeMember(rel.Inverse.Name, owner)
	}
	s.forget(ctx, owner)
	if s.loader != nil {
		prefix := blazeorm.CacheKey{Entity: rel.Target.Name}.Prefix()
		if err := s.loader.ForgetPrefix(ctx, prefix); err != nil {
			s.logger.WarnContext(ctx, "cache invalidation failed", "prefix", prefix, "error", err)
		}
	}
	return nil
}

// Members returns the instances linked to owner through the relation name,
// loading them with one query if needed.
func (s *Session) Members(ctx context.Context, owner *Instance, name string) ([]*Instance, error) {
	if _, err := s.membership(owner, name, nil); err != nil {
		return nil, err
	}
	return s.Related(ctx, owner, name)
}

func checkPersisted(inst *Instance) error {
	if inst.state != Persistent || inst.PK() == nil {
		return fmt.Errorf("session: %s must be persisted before linking", inst)
	}
	return nil
}

func (s *Session) membership(owner *Instance, name string, targets []*Instance) (*schema.Relation, error) {
	if err := s.owns(owner); err != nil {
		return nil, err
	}
	rel, ok := owner.entity.Relation(name)
	if !ok {
		return nil, blazeorm.NewUnknownFieldError(owner.entity.Name, name)
	}
	if rel.Kind != edge.KindManyToMany {
		return nil, fmt.Errorf("session: %s is a %s relation, not many-to-many", rel, rel.Kind)
	}
	if err := checkPersisted(owner); err != nil {
		return nil, err
	}
	for _, t := range targets {
		if t.entity != rel.Target {
			return nil, fmt.Errorf("session: %s expects %s, got %s", rel, rel.Target.Name, t.entity.Name)
		}
		if err := checkPersisted(t); err != nil {
			return nil, err
		}
	}
	return rel, nil
}
