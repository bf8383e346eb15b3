package session

import (
	"context"
	"fmt"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/dialect"
	"github.com/KipianiNikoloz/blazeorm/internal/batch"
	"github.com/KipianiNikoloz/blazeorm/query"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// materializeJoined turns the rows of a statement with joined relations
// into root instances, resolving every joined relation on its parent. A
// joined relation without a matching row resolves to empty.
func (s *Session) materializeJoined(e *schema.Entity, st *query.Statement, res *dialect.Result) ([]*Instance, error) {
	var (
		roots []*Instance
		seen  = make(map[*Instance]bool)
	)
	for _, row := range res.Maps() {
		root, err := s.Materialize(e, row)
		if err != nil {
			return nil, err
		}
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
		byPath := map[string]*Instance{"": root}
		for _, j := range st.Joins {
			parent := byPath[j.Parent]
			if parent == nil {
				continue
			}
			target := j.Relation.Target
			sub := make(map[string]any, len(target.Fields()))
			for _, fd := range target.Fields() {
				sub[fd.Column] = row[j.ColumnAlias(fd.Column)]
			}
			if sub[target.PK().Column] == nil {
				parent.resolve(j.Relation, nil)
				continue
			}
			child, err := s.Materialize(target, sub)
			if err != nil {
				return nil, err
			}
			parent.resolve(j.Relation, []*Instance{child})
			byPath[j.Path] = child
		}
	}
	return roots, nil
}

// pathNode is one level of the prefetch tree.
type pathNode struct {
	rel      *schema.Relation
	children []*pathNode
}

func (n *pathNode) child(rel *schema.Relation) *pathNode {
	for _, c := range n.children {
		if c.rel == rel {
			return c
		}
	}
	c := &pathNode{rel: rel}
	n.children = append(n.children, c)
	return c
}

// prefetchTree merges relation paths into a tree sharing common prefixes.
func prefetchTree(e *schema.Entity, paths []string) (*pathNode, error) {
	root := &pathNode{}
	for _, p := range paths {
		rels, err := query.ResolvePath(e, p)
		if err != nil {
			return nil, err
		}
		n := root
		for _, rel := range rels {
			n = n.child(rel)
		}
	}
	return root, nil
}

// Prefetch resolves the relation paths on roots with one query per
// relation level. Relations already loaded are not queried again.
func (s *Session) Prefetch(ctx context.Context, roots []*Instance, paths ...string) error {
	if len(roots) == 0 || len(paths) == 0 {
		return nil
	}
	tree, err := prefetchTree(roots[0].entity, paths)
	if err != nil {
		return err
	}
	return s.prefetch(ctx, roots, tree)
}

func (s *Session) prefetch(ctx context.Context, parents []*Instance, n *pathNode) error {
	for _, c := range n.children {
		if err := s.loadLevel(ctx, c.rel, parents); err != nil {
			return err
		}
		if len(c.children) == 0 {
			continue
		}
		var next []*Instance
		seen := make(map[*Instance]bool)
		for _, p := range parents {
			rs, _ := p.Related(c.rel.Name)
			for _, r := range rs {
				if !seen[r] {
					seen[r] = true
					next = append(next, r)
				}
			}
		}
		if len(next) == 0 {
			continue
		}
		if err := s.prefetch(ctx, next, c); err != nil {
			return err
		}
	}
	return nil
}

// loadLevel resolves rel on every parent that has not loaded it yet, with
// at most one query.
func (s *Session) loadLevel(ctx context.Context, rel *schema.Relation, parents []*Instance) error {
	var pending []*Instance
	for _, p := range parents {
		switch {
		case p.resolved(rel.Name):
		case p.PK() == nil:
			p.resolve(rel, nil)
		default:
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	switch {
	case rel.Kind.Local():
		return s.loadToOne(ctx, rel, pending)
	case rel.Kind == edge.KindManyToMany:
		return s.loadManyToMany(ctx, rel, pending)
	default:
		return s.loadReverse(ctx, rel, pending)
	}
}

// loadToOne selects the targets whose key is in the foreign keys of
// parents.
func (s *Session) loadToOne(ctx context.Context, rel *schema.Relation, parents []*Instance) error {
	fk := rel.FK()
	keys := batch.Keys(parents, func(p *Instance) (any, bool) {
		v := p.values[fk.Name]
		return v, v != nil
	})
	byKey := make(map[any]*Instance, len(keys))
	if len(keys) > 0 {
		targets, err := s.fetchByKeys(ctx, rel.Target, keys)
		if err != nil {
			return err
		}
		for _, t := range targets {
			byKey[t.PK()] = t
		}
	}
	for _, p := range parents {
		if t, ok := byKey[p.values[fk.Name]]; ok {
			p.resolve(rel, []*Instance{t})
		} else {
			p.resolve(rel, nil)
		}
	}
	return nil
}

// loadReverse selects the children whose foreign key is in the keys of
// parents, ordered by their key.
func (s *Session) loadReverse(ctx context.Context, rel *schema.Relation, parents []*Instance) error {
	fk := rel.FK()
	keys := batch.Keys(parents, func(p *Instance) (any, bool) { return p.PK(), true })
	ref, err := query.Field(rel.Target, fk.Name)
	if err != nil {
		return err
	}
	spec := query.Select(rel.Target).Where(ref.In(keys...)).OrderBy(query.Asc(query.PK(rel.Target)))
	st, err := query.Compile(spec, s.dialect)
	if err != nil {
		return err
	}
	res, err := s.Execute(ctx, st)
	if err != nil {
		return err
	}
	children, err := s.MaterializeAll(rel.Target, res)
	if err != nil {
		return err
	}
	groups := batch.GroupByKey(children, func(c *Instance) any { return c.values[fk.Name] })
	for i, members := range batch.OrderGroupsByKeys(keys, groups) {
		p := parents[i]
		if rel.Kind == edge.KindReverseOne && len(members) > 1 {
			members = members[:1]
		}
		p.resolve(rel, members)
	}
	return nil
}

// loadManyToMany selects the targets linked to parents through the link
// table. Each row carries the owner key under query.LinkColumn.
func (s *Session) loadManyToMany(ctx context.Context, rel *schema.Relation, parents []*Instance) error {
	keys := batch.Keys(parents, func(p *Instance) (any, bool) { return p.PK(), true })
	st, err := query.CompileThrough(rel, keys, s.dialect)
	if err != nil {
		return err
	}
	res, err := s.Execute(ctx, st)
	if err != nil {
		return err
	}
	type link struct {
		owner  any
		target *Instance
	}
	var links []link
	for _, row := range res.Maps() {
		owner, err := field.Coerce(rel.Owner.PK().Type, row[query.LinkColumn])
		if err != nil {
			return fmt.Errorf("session: %s link key: %w", rel, err)
		}
		t, err := s.Materialize(rel.Target, row)
		if err != nil {
			return err
		}
		links = append(links, link{owner: owner, target: t})
	}
	groups := make(map[any][]*Instance)
	for owner, ls := range batch.GroupByKey(links, func(l link) any { return l.owner }) {
		members := make([]*Instance, len(ls))
		for i, l := range ls {
			members[i] = l.target
		}
		groups[owner] = batch.Dedup(members, func(i *Instance) *Instance { return i })
	}
	for i, members := range batch.OrderGroupsByKeys(keys, groups) {
		parents[i].resolve(rel, members)
	}
	return nil
}

// checkJoin reports paths that cannot be joined.
func checkJoin(e *schema.Entity, path string) error {
	rels, err := query.ResolvePath(e, path)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if rel.Kind.Collection() {
			return blazeorm.NewUnsupportedEagerStrategyError(path, "join",
				fmt.Sprintf("%s is a %s relation; load it with Prefetch", rel, rel.Kind))
		}
	}
	return nil
}
