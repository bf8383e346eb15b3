package query

import (
	"slices"

	"github.com/KipianiNikoloz/blazeorm/schema"
)

// OrderKey is one sort key.
type OrderKey struct {
	Ref  Ref
	Desc bool
}

// Asc orders by r ascending.
func Asc(r Ref) OrderKey { return OrderKey{Ref: r} }

// Desc orders by r descending.
func Desc(r Ref) OrderKey { return OrderKey{Ref: r, Desc: true} }

// Spec describes a SELECT over one entity. The zero value is unusable; start
// from Select. Specs are values: every method returns a modified copy and
// never alters the receiver or slices shared with it.
type Spec struct {
	entity  *schema.Entity
	where   []Predicate
	order   []OrderKey
	limit   *int
	offset  *int
	joins   []string
	batches []string
}

// Select starts a specification over e.
func Select(e *schema.Entity) Spec {
	return Spec{entity: e}
}

// Entity returns the selected entity.
func (s Spec) Entity() *schema.Entity { return s.entity }

// Where adds predicates, combined with AND with the existing ones.
func (s Spec) Where(ps ...Predicate) Spec {
	s.where = append(slices.Clip(s.where), compact(ps)...)
	return s
}

// OrderBy appends sort keys.
func (s Spec) OrderBy(keys ...OrderKey) Spec {
	s.order = append(slices.Clip(s.order), keys...)
	return s
}

// Limit sets the maximum number of rows.
func (s Spec) Limit(n int) Spec {
	s.limit = &n
	return s
}

// Offset sets the number of rows to skip.
func (s Spec) Offset(n int) Spec {
	s.offset = &n
	return s
}

// Join requests relation paths loaded by joining them into the statement.
// Only to-one paths can be joined.
func (s Spec) Join(paths ...string) Spec {
	s.joins = appendUnique(s.joins, paths)
	return s
}

// Batch requests relation paths loaded by one extra query per level.
func (s Spec) Batch(paths ...string) Spec {
	s.batches = appendUnique(s.batches, paths)
	return s
}

// Predicate returns the combined filter, or nil if there is none.
func (s Spec) Predicate() Predicate {
	switch len(s.where) {
	case 0:
		return nil
	case 1:
		return s.where[0]
	}
	return And(s.where...)
}

// Order returns a copy of the sort keys.
func (s Spec) Order() []OrderKey { return slices.Clone(s.order) }

// Joins returns a copy of the joined paths.
func (s Spec) Joins() []string { return slices.Clone(s.joins) }

// Batches returns a copy of the batch-loaded paths.
func (s Spec) Batches() []string { return slices.Clone(s.batches) }

// LimitValue returns the limit, if set.
func (s Spec) LimitValue() (int, bool) {
	if s.limit == nil {
		return 0, false
	}
	return *s.limit, true
}

// OffsetValue returns the offset, if set.
func (s Spec) OffsetValue() (int, bool) {
	if s.offset == nil {
		return 0, false
	}
	return *s.offset, true
}

func appendUnique(dst, src []string) []string {
	out := slices.Clip(dst)
	for _, p := range src {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
