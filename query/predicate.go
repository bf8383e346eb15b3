package query

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// Op is a comparison operator.
type Op uint8

// Comparison operators.
const (
	OpEQ Op = iota + 1
	OpNEQ
	OpLT
	OpLTE
	OpGT
	OpGTE
	OpIn
	OpNotIn
	OpIsNull
	OpNotNull
	OpLike
	OpEqualFold
	OpLikeFold
)

var opText = [...]string{
	OpEQ:        "=",
	OpNEQ:       "<>",
	OpLT:        "<",
	OpLTE:       "<=",
	OpGT:        ">",
	OpGTE:       ">=",
	OpIn:        "IN",
	OpNotIn:     "NOT IN",
	OpIsNull:    "IS NULL",
	OpNotNull:   "IS NOT NULL",
	OpLike:      "LIKE",
	OpEqualFold: "=",
	OpLikeFold:  "LIKE",
}

// String returns the SQL operator.
func (o Op) String() string {
	if int(o) < len(opText) && opText[o] != "" {
		return opText[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// folded reports if the operator compares lower-cased values.
func (o Op) folded() bool { return o == OpEqualFold || o == OpLikeFold }

// Predicate is a node of an immutable boolean tree.
type Predicate interface {
	fmt.Stringer
	render(*builder) error
}

// Comparison is an atomic predicate on one field.
type Comparison struct {
	ref    Ref
	op     Op
	value  any
	values []any
}

// Ref returns the compared field.
func (c *Comparison) Ref() Ref { return c.ref }

// Op returns the operator.
func (c *Comparison) Op() Op { return c.op }

// Value returns the operand of binary operators.
func (c *Comparison) Value() any { return c.value }

// Values returns a copy of the operands of IN and NOT IN.
func (c *Comparison) Values() []any { return append([]any(nil), c.values...) }

// String implements fmt.Stringer.
func (c *Comparison) String() string {
	name := c.ref.Name()
	if c.op.folded() {
		name = "lower(" + name + ")"
	}
	switch c.op {
	case OpIsNull, OpNotNull:
		return name + " " + c.op.String()
	case OpIn, OpNotIn:
		return fmt.Sprintf("%s %s %v", name, c.op, c.values)
	}
	return fmt.Sprintf("%s %s %v", name, c.op, c.value)
}

// JunctionKind is AND or OR.
type JunctionKind uint8

// Junction kinds.
const (
	AndKind JunctionKind = iota + 1
	OrKind
)

// String returns the SQL keyword.
func (k JunctionKind) String() string {
	if k == OrKind {
		return "OR"
	}
	return "AND"
}

// Junction combines predicates with AND or OR, in the given order.
type Junction struct {
	kind     JunctionKind
	children []Predicate
}

// Kind returns AND or OR.
func (j *Junction) Kind() JunctionKind { return j.kind }

// Children returns a copy of the combined predicates.
func (j *Junction) Children() []Predicate { return append([]Predicate(nil), j.children...) }

// String implements fmt.Stringer.
func (j *Junction) String() string {
	parts := make([]string, len(j.children))
	for i, c := range j.children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " "+j.kind.String()+" ") + ")"
}

// Negation inverts a predicate.
type Negation struct {
	child Predicate
}

// Child returns the negated predicate.
func (n *Negation) Child() Predicate { return n.child }

// String implements fmt.Stringer.
func (n *Negation) String() string {
	if _, ok := n.child.(*Junction); ok {
		return "NOT " + n.child.String()
	}
	return "NOT (" + n.child.String() + ")"
}

// And returns the conjunction of ps. Nil predicates are skipped.
func And(ps ...Predicate) Predicate {
	return &Junction{kind: AndKind, children: compact(ps)}
}

// Or returns the disjunction of ps. Nil predicates are skipped.
func Or(ps ...Predicate) Predicate {
	return &Junction{kind: OrKind, children: compact(ps)}
}

// Not returns the negation of p.
func Not(p Predicate) Predicate {
	return &Negation{child: p}
}

func compact(ps []Predicate) []Predicate {
	out := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (r Ref) cmp(op Op, v any) Predicate {
	return &Comparison{ref: r, op: op, value: r.normalize(v)}
}

// normalize converts v to the canonical type of the field when possible.
// Values the field type cannot represent, and driver.Valuer implementations,
// are passed through unchanged.
func (r Ref) normalize(v any) any {
	if r.field == nil || v == nil {
		return v
	}
	if _, ok := v.(driver.Valuer); ok {
		return v
	}
	if c, err := field.Coerce(r.field.Type, v); err == nil {
		return c
	}
	return v
}

// EQ matches rows where the field equals v. A nil v matches NULL.
func (r Ref) EQ(v any) Predicate {
	if v == nil {
		return r.IsNull()
	}
	return r.cmp(OpEQ, v)
}

// NEQ matches rows where the field differs from v. A nil v matches NOT NULL.
func (r Ref) NEQ(v any) Predicate {
	if v == nil {
		return r.NotNull()
	}
	return r.cmp(OpNEQ, v)
}

// LT matches rows where the field is less than v.
func (r Ref) LT(v any) Predicate { return r.cmp(OpLT, v) }

// LTE matches rows where the field is less than or equal to v.
func (r Ref) LTE(v any) Predicate { return r.cmp(OpLTE, v) }

// GT matches rows where the field is greater than v.
func (r Ref) GT(v any) Predicate { return r.cmp(OpGT, v) }

// GTE matches rows where the field is greater than or equal to v.
func (r Ref) GTE(v any) Predicate { return r.cmp(OpGTE, v) }

// In matches rows where the field is one of vs. An empty set matches nothing.
func (r Ref) In(vs ...any) Predicate {
	return &Comparison{ref: r, op: OpIn, values: r.normalizeAll(vs)}
}

// NotIn matches rows where the field is none of vs. An empty set matches everything.
func (r Ref) NotIn(vs ...any) Predicate {
	return &Comparison{ref: r, op: OpNotIn, values: r.normalizeAll(vs)}
}

func (r Ref) normalizeAll(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = r.normalize(v)
	}
	return out
}

// IsNull matches rows where the field is NULL.
func (r Ref) IsNull() Predicate { return &Comparison{ref: r, op: OpIsNull} }

// NotNull matches rows where the field is not NULL.
func (r Ref) NotNull() Predicate { return &Comparison{ref: r, op: OpNotNull} }

// Like matches rows against a raw LIKE pattern.
func (r Ref) Like(pattern string) Predicate {
	return &Comparison{ref: r, op: OpLike, value: pattern}
}

// Contains matches rows where the field contains s.
func (r Ref) Contains(s string) Predicate { return r.Like("%" + s + "%") }

// HasPrefix matches rows where the field starts with s.
func (r Ref) HasPrefix(s string) Predicate { return r.Like(s + "%") }

// HasSuffix matches rows where the field ends with s.
func (r Ref) HasSuffix(s string) Predicate { return r.Like("%" + s) }

// EqualFold matches rows where the field equals s, ignoring case.
func (r Ref) EqualFold(s string) Predicate {
	return &Comparison{ref: r, op: OpEqualFold, value: fold(s)}
}

// ContainsFold matches rows where the field contains s, ignoring case.
func (r Ref) ContainsFold(s string) Predicate {
	return &Comparison{ref: r, op: OpLikeFold, value: "%" + fold(s) + "%"}
}

// fold lower-cases s. A Caser is stateful, so one is created per call.
func fold(s string) string {
	return cases.Lower(language.Und).String(s)
}

// expand flattens a single slice argument into its elements.
func expand(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
