package session

import (
	"context"
	"strings"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/query"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// QuerySet is a chainable query over one entity. Every method returns a
// new QuerySet. The first invalid field name or path is recorded and
// returned by every terminal operation before any statement runs.
//
//	posts, err := s.Query(post).
//		Filter("title__icontains", "go").
//		Exclude("draft", true).
//		OrderBy("-created_at").
//		Join("author").
//		Prefetch("tags").
//		All(ctx)
type QuerySet struct {
	session *Session
	entity  *schema.Entity
	spec    query.Spec
	err     error
}

func newQuerySet(s *Session, e *schema.Entity) *QuerySet {
	return &QuerySet{session: s, entity: e, spec: query.Select(e)}
}

// From returns a query set over e that runs in the session bound to the
// context of its terminal operation.
func From(e *schema.Entity) *QuerySet {
	return newQuerySet(nil, e)
}

func (q *QuerySet) clone() *QuerySet {
	c := *q
	return &c
}

func (q *QuerySet) with(fn func(*QuerySet) error) *QuerySet {
	c := q.clone()
	if c.err == nil {
		c.err = fn(c)
	}
	return c
}

// Filter adds a "field__operator" lookup.
func (q *QuerySet) Filter(lookup string, v any) *QuerySet {
	return q.with(func(c *QuerySet) error {
		p, err := query.Lookup(c.entity, lookup, v)
		if err != nil {
			return err
		}
		c.spec = c.spec.Where(p)
		return nil
	})
}

// Exclude adds the negation of a "field__operator" lookup.
func (q *QuerySet) Exclude(lookup string, v any) *QuerySet {
	return q.with(func(c *QuerySet) error {
		p, err := query.Lookup(c.entity, lookup, v)
		if err != nil {
			return err
		}
		c.spec = c.spec.Where(query.Not(p))
		return nil
	})
}

// Where adds predicates built with package query.
func (q *QuerySet) Where(ps ...query.Predicate) *QuerySet {
	return q.with(func(c *QuerySet) error {
		c.spec = c.spec.Where(ps...)
		return nil
	})
}

// OrderBy appends sort keys. A leading "-" sorts descending.
func (q *QuerySet) OrderBy(fields ...string) *QuerySet {
	return q.with(func(c *QuerySet) error {
		keys := make([]query.OrderKey, 0, len(fields))
		for _, f := range fields {
			name, desc := strings.CutPrefix(f, "-")
			ref, err := query.Field(c.entity, name)
			if err != nil {
				return err
			}
			if desc {
				keys = append(keys, query.Desc(ref))
			} else {
				keys = append(keys, query.Asc(ref))
			}
		}
		c.spec = c.spec.OrderBy(keys...)
		return nil
	})
}

// Limit sets the maximum number of rows.
func (q *QuerySet) Limit(n int) *QuerySet {
	return q.with(func(c *QuerySet) error {
		c.spec = c.spec.Limit(n)
		return nil
	})
}

// Offset sets the number of rows to skip.
func (q *QuerySet) Offset(n int) *QuerySet {
	return q.with(func(c *QuerySet) error {
		c.spec = c.spec.Offset(n)
		return nil
	})
}

// Join loads to-one relation paths in the same statement.
func (q *QuerySet) Join(paths ...string) *QuerySet {
	return q.with(func(c *QuerySet) error {
		for _, p := range paths {
			if err := checkJoin(c.entity, p); err != nil {
				return err
			}
		}
		c.spec = c.spec.Join(paths...)
		return nil
	})
}

// Prefetch loads relation paths with one extra statement per relation
// level.
func (q *QuerySet) Prefetch(paths ...string) *QuerySet {
	return q.with(func(c *QuerySet) error {
		for _, p := range paths {
			if _, err := query.ResolvePath(c.entity, p); err != nil {
				return err
			}
		}
		c.spec = c.spec.Batch(paths...)
		return nil
	})
}

// Err returns the first error recorded while building the query set.
func (q *QuerySet) Err() error { return q.err }

// Spec returns the query specification.
func (q *QuerySet) Spec() query.Spec { return q.spec }

func (q *QuerySet) bind(ctx context.Context, op string) (*Session, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.session != nil {
		return q.session, nil
	}
	s, ok := fromContext(ctx)
	if !ok {
		return nil, &blazeorm.NoActiveSessionError{Op: op}
	}
	return s, nil
}

// SQL compiles the query set with the dialect of its session.
func (q *QuerySet) SQL(ctx context.Context) (*query.Statement, error) {
	s, err := q.bind(ctx, "sql")
	if err != nil {
		return nil, err
	}
	return query.Compile(q.spec, s.dialect)
}

// All runs the query and returns the matching instances. Instances
// scheduled for deletion are left out.
func (q *QuerySet) All(ctx context.Context) ([]*Instance, error) {
	s, err := q.bind(ctx, "all")
	if err != nil {
		return nil, err
	}
	return q.all(ctx, s, q.spec)
}

func (q *QuerySet) all(ctx context.Context, s *Session, spec query.Spec) ([]*Instance, error) {
	st, err := query.Compile(spec, s.dialect)
	if err != nil {
		return nil, err
	}
	res, err := s.Execute(ctx, st)
	if err != nil {
		return nil, err
	}
	roots, err := s.materializeJoined(q.entity, st, res)
	if err != nil {
		return nil, err
	}
	if err := s.Prefetch(ctx, roots, spec.Batches()...); err != nil {
		return nil, err
	}
	out := roots[:0]
	for _, inst := range roots {
		if !inst.Deleted() {
			out = append(out, inst)
		}
	}
	return out, nil
}

// First returns the first matching instance, ordered by key unless the
// query set is ordered.
func (q *QuerySet) First(ctx context.Context) (*Instance, error) {
	s, err := q.bind(ctx, "first")
	if err != nil {
		return nil, err
	}
	spec := q.spec.Limit(1)
	if len(spec.Order()) == 0 {
		spec = spec.OrderBy(query.Asc(query.PK(q.entity)))
	}
	insts, err := q.all(ctx, s, spec)
	if err != nil {
		return nil, err
	}
	if len(insts) == 0 {
		return nil, blazeorm.NewNotFoundError(q.entity.Name)
	}
	return insts[0], nil
}

// Only returns the single matching instance. It fails with a NotFoundError
// when nothing matches and a NotSingularError when more than one does.
func (q *QuerySet) Only(ctx context.Context) (*Instance, error) {
	s, err := q.bind(ctx, "only")
	if err != nil {
		return nil, err
	}
	insts, err := q.all(ctx, s, q.spec.Limit(2))
	if err != nil {
		return nil, err
	}
	switch len(insts) {
	case 1:
		return insts[0], nil
	case 0:
		return nil, blazeorm.NewNotFoundError(q.entity.Name)
	default:
		return nil, blazeorm.NewNotSingularErrorWithCount(q.entity.Name, len(insts))
	}
}

// Count returns the number of matching rows.
func (q *QuerySet) Count(ctx context.Context) (int, error) {
	s, err := q.bind(ctx, "count")
	if err != nil {
		return 0, err
	}
	st, err := query.CompileCount(q.spec, s.dialect)
	if err != nil {
		return 0, err
	}
	res, err := s.Execute(ctx, st)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, nil
	}
	n, err := field.Coerce(field.TypeInt, res.Rows[0][0])
	if err != nil {
		return 0, err
	}
	return int(n.(int64)), nil
}
