package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/query"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// Flush writes the pending work of the unit of work: inserts parents
// first, then updates of changed columns, then deletes children first.
// Validation of every pending insert and update runs before the first
// statement, and all failures are reported together.
//
// Flush runs inside the active transaction, or in autocommit mode when no
// transaction is active.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.uow.Len() == 0 {
		return nil
	}
	inserts, err := s.insertOrder(s.uow.Instances(OpInsert))
	if err != nil {
		return err
	}
	updates := s.uow.Instances(OpUpdate)
	deletes := s.deleteOrder(s.uow.Instances(OpDelete))
	if err := s.validate(ctx, inserts, updates); err != nil {
		return err
	}
	for _, inst := range inserts {
		if err := s.insert(ctx, inst); err != nil {
			return blazeorm.NewMutationError(inst.entity.Name, OpInsert.String(), err)
		}
	}
	for _, inst := range updates {
		if err := s.update(ctx, inst); err != nil {
			return blazeorm.NewMutationError(inst.entity.Name, OpUpdate.String(), err)
		}
	}
	for _, inst := range deletes {
		if err := s.delete(ctx, inst); err != nil {
			return blazeorm.NewMutationError(inst.entity.Name, OpDelete.String(), err)
		}
	}
	return nil
}

// validate fires the validation hooks and checks every field an insert or
// update writes. Foreign keys waiting for a pending parent are skipped.
func (s *Session) validate(ctx context.Context, inserts, updates []*Instance) error {
	var errs []error
	check := func(inst *Instance, all bool) {
		if err := s.hooks.Fire(ctx, PreValidate, s, inst); err != nil {
			errs = append(errs, err)
			return
		}
		linked := make(map[string]bool, len(inst.links))
		for name := range inst.links {
			rel, _ := inst.entity.Relation(name)
			linked[rel.FK().Name] = true
		}
		for _, fd := range inst.entity.Fields() {
			if linked[fd.Name] || (!all && !inst.dirty[fd.Name]) {
				continue
			}
			if err := fd.Validate(inst.values[fd.Name]); err != nil {
				errs = append(errs, blazeorm.NewValidationError(inst.entity.Name+"."+fd.Name, err))
			}
		}
		if err := s.hooks.Fire(ctx, PostValidate, s, inst); err != nil {
			errs = append(errs, err)
		}
	}
	for _, inst := range inserts {
		check(inst, true)
	}
	for _, inst := range updates {
		check(inst, false)
	}
	return blazeorm.NewAggregateError(errs...)
}

// insertOrder sorts pending instances so that parents linked with
// SetRelated precede their children. Unrelated instances keep their
// registration order.
func (s *Session) insertOrder(pending []*Instance) ([]*Instance, error) {
	const (
		visiting = 1
		done     = 2
	)
	var (
		out     = make([]*Instance, 0, len(pending))
		marks   = make(map[*Instance]int, len(pending))
		queued  = make(map[*Instance]bool, len(pending))
		visit   func(*Instance) error
		inQueue = func(i *Instance) bool { return queued[i] }
	)
	for _, inst := range pending {
		queued[inst] = true
	}
	visit = func(inst *Instance) error {
		switch marks[inst] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("session: cyclic relation links through %s", inst)
		}
		marks[inst] = visiting
		for _, rel := range inst.entity.Relations() {
			parent, ok := inst.links[rel.Name]
			if !ok || !inQueue(parent) {
				continue
			}
			if err := visit(parent); err != nil {
				return err
			}
		}
		marks[inst] = done
		out = append(out, inst)
		return nil
	}
	for _, inst := range pending {
		if err := visit(inst); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// deleteOrder sorts deletes so children are deleted before the parents
// they reference. Instances of one entity keep their registration order.
func (s *Session) deleteOrder(deletes []*Instance) []*Instance {
	out := slices.Clone(deletes)
	slices.SortStableFunc(out, func(a, b *Instance) int {
		return s.entityOrder[b.entity] - s.entityOrder[a.entity]
	})
	return out
}

// resolveLinks copies the keys of linked parents into the foreign keys.
func (s *Session) resolveLinks(inst *Instance) error {
	for name, parent := range inst.links {
		rel, _ := inst.entity.Relation(name)
		pk := parent.PK()
		if pk == nil || parent.state != Persistent {
			return fmt.Errorf("session: %s links %s which is not persisted", inst, parent)
		}
		fk := rel.FK()
		inst.values[fk.Name] = pk
		inst.dirty[fk.Name] = true
		delete(inst.links, name)
	}
	return nil
}

func (s *Session) insert(ctx context.Context, inst *Instance) error {
	if err := s.hooks.Fire(ctx, PreSave, s, inst); err != nil {
		return err
	}
	if err := s.resolveLinks(inst); err != nil {
		return err
	}
	e := inst.entity
	pk := e.PK()
	values := make([]query.Assignment, 0, len(inst.values))
	for _, fd := range e.Fields() {
		v := inst.values[fd.Name]
		if fd.PrimaryKey && fd.Generated() && v == nil {
			continue
		}
		values = append(values, query.Assignment{Field: fd, Value: v})
	}
	st, err := query.CompileInsert(e, values, s.dialect)
	if err != nil {
		return err
	}
	if inst.values[pk.Name] == nil {
		key, err := s.insertGenerated(ctx, st)
		if err != nil {
			return err
		}
		if inst.values[pk.Name], err = field.Coerce(pk.Type, key); err != nil {
			return err
		}
	} else if _, err := s.Exec(ctx, st); err != nil {
		return err
	}
	if err := s.identity.Add(inst); err != nil {
		return err
	}
	inst.state = Persistent
	inst.clean()
	s.uow.Remove(inst)
	s.track(inst, OpInsert)
	for _, rel := range e.Relations() {
		if parent, ok := inst.RelatedOne(rel.Name); ok && parent != nil && rel.Kind.Local() && rel.Inverse != nil {
			parent.addMember(rel.Inverse.Name, inst)
		}
	}
	return s.hooks.Fire(ctx, PostSave, s, inst)
}

// insertGenerated runs an insert and returns the generated key.
func (s *Session) insertGenerated(ctx context.Context, st *query.Statement) (any, error) {
	if st.Returning {
		res, err := s.Execute(ctx, st)
		if err != nil {
			return nil, err
		}
		if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
			return nil, fmt.Errorf("session: insert returned no key")
		}
		return res.Rows[0][0], nil
	}
	res, err := s.Exec(ctx, st)
	if err != nil {
		return nil, err
	}
	if res.LastInsertID != 0 {
		return res.LastInsertID, nil
	}
	return s.adapter.LastInsertID()
}

func (s *Session) update(ctx context.Context, inst *Instance) error {
	if err := s.hooks.Fire(ctx, PreSave, s, inst); err != nil {
		return err
	}
	if err := s.resolveLinks(inst); err != nil {
		return err
	}
	e := inst.entity
	for _, fd := range e.Fields() {
		if fd.UpdateDefault == nil || inst.dirty[fd.Name] {
			continue
		}
		v, err := field.Coerce(fd.Type, fd.UpdateDefault())
		if err != nil {
			return blazeorm.NewValidationError(e.Name+"."+fd.Name, err)
		}
		inst.values[fd.Name] = v
		inst.dirty[fd.Name] = true
	}
	var values []query.Assignment
	for _, name := range inst.DirtyFields() {
		fd, _ := e.Field(name)
		if fd.PrimaryKey {
			continue
		}
		values = append(values, query.Assignment{Field: fd, Value: inst.values[name]})
	}
	if len(values) > 0 {
		st, err := query.CompileUpdate(e, values, inst.PK(), s.dialect)
		if err != nil {
			return err
		}
		if _, err := s.Exec(ctx, st); err != nil {
			return err
		}
		s.forget(ctx, inst)
		s.track(inst, OpUpdate)
	}
	inst.clean()
	s.uow.Remove(inst)
	return s.hooks.Fire(ctx, PostSave, s, inst)
}

func (s *Session) delete(ctx context.Context, inst *Instance) error {
	if err := s.hooks.Fire(ctx, PreDelete, s, inst); err != nil {
		return err
	}
	st, err := query.CompileDelete(inst.entity, inst.PK(), s.dialect)
	if err != nil {
		return err
	}
	if _, err := s.Exec(ctx, st); err != nil {
		return err
	}
	s.identity.Remove(inst)
	s.uow.Remove(inst)
	s.forget(ctx, inst)
	inst.state = Deleted
	for _, rel := range inst.entity.Relations() {
		if parent, ok := inst.RelatedOne(rel.Name); ok && parent != nil && rel.Kind.Local() && rel.Inverse != nil {
			parent.removeMember(rel.Inverse.Name, inst)
		}
	}
	s.track(inst, OpDelete)
	return s.hooks.Fire(ctx, PostDelete, s, inst)
}

// track records a written instance for the PostCommit hooks.
func (s *Session) track(inst *Instance, op Op) {
	seq := s.uow.Mark()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = append(s.persisted, persisted{inst: inst, op: op, seq: seq})
}

// forget drops the cached row of inst. Cache failures are logged.
func (s *Session) forget(ctx context.Context, inst *Instance) {
	if s.loader == nil {
		return
	}
	key := blazeorm.CacheKey{Entity: inst.entity.Name, PK: inst.PK()}
	if err := s.loader.Forget(ctx, key.String()); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", "key", key.String(), "error", err)
	}
}

// dependencyOrder ranks entities so every entity ranks above the entities
// its to-one relations reference. Cycles keep their registration order.
func dependencyOrder(reg *schema.Registry) map[*schema.Entity]int {
	var (
		order = make(map[*schema.Entity]int)
		state = make(map[*schema.Entity]bool)
		visit func(*schema.Entity)
	)
	visit = func(e *schema.Entity) {
		if _, seen := state[e]; seen {
			return
		}
		state[e] = false
		for _, rel := range e.Relations() {
			if rel.Kind.Local() && rel.Target != e {
				visit(rel.Target)
			}
		}
		state[e] = true
		order[e] = len(order)
	}
	for _, e := range reg.Entities() {
		visit(e)
	}
	return order
}
