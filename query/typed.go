package query

import "time"

// TypedField wraps a Ref so that operands are checked by the Go compiler.
// Generated entity packages expose one TypedField per field:
//
//	var Age = query.Typed[int64](query.MustField(author, "age"))
//	spec.Where(Age.GTE(18))
type TypedField[T any] struct {
	ref Ref
}

// Typed returns a typed view of r.
func Typed[T any](r Ref) TypedField[T] {
	return TypedField[T]{ref: r}
}

// Common typed fields.
type (
	IntField   = TypedField[int64]
	FloatField = TypedField[float64]
	BoolField  = TypedField[bool]
	TimeField  = TypedField[time.Time]
)

// Ref returns the untyped reference.
func (f TypedField[T]) Ref() Ref { return f.ref }

// Name returns the field name.
func (f TypedField[T]) Name() string { return f.ref.Name() }

// EQ returns a predicate that checks if the field equals the given value.
func (f TypedField[T]) EQ(v T) Predicate { return f.ref.EQ(v) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f TypedField[T]) NEQ(v T) Predicate { return f.ref.NEQ(v) }

// LT returns a predicate that checks if the field is less than the given value.
func (f TypedField[T]) LT(v T) Predicate { return f.ref.LT(v) }

// LTE returns a predicate that checks if the field is less than or equal to the given value.
func (f TypedField[T]) LTE(v T) Predicate { return f.ref.LTE(v) }

// GT returns a predicate that checks if the field is greater than the given value.
func (f TypedField[T]) GT(v T) Predicate { return f.ref.GT(v) }

// GTE returns a predicate that checks if the field is greater than or equal to the given value.
func (f TypedField[T]) GTE(v T) Predicate { return f.ref.GTE(v) }

// In returns a predicate that checks if the field value is in the given list.
func (f TypedField[T]) In(vs ...T) Predicate { return f.ref.In(anys(vs)...) }

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f TypedField[T]) NotIn(vs ...T) Predicate { return f.ref.NotIn(anys(vs)...) }

// IsNull returns a predicate that checks if the field is NULL.
func (f TypedField[T]) IsNull() Predicate { return f.ref.IsNull() }

// NotNull returns a predicate that checks if the field is not NULL.
func (f TypedField[T]) NotNull() Predicate { return f.ref.NotNull() }

// Asc orders by the field ascending.
func (f TypedField[T]) Asc() OrderKey { return Asc(f.ref) }

// Desc orders by the field descending.
func (f TypedField[T]) Desc() OrderKey { return Desc(f.ref) }

// StringField adds text matching to a string field.
type StringField struct {
	TypedField[string]
}

// Text returns a typed view of a string field.
func Text(r Ref) StringField {
	return StringField{TypedField: Typed[string](r)}
}

// Contains returns a predicate that checks if the field contains the given substring.
func (f StringField) Contains(s string) Predicate { return f.ref.Contains(s) }

// ContainsFold returns a predicate that checks if the field contains the given substring (case-insensitive).
func (f StringField) ContainsFold(s string) Predicate { return f.ref.ContainsFold(s) }

// HasPrefix returns a predicate that checks if the field has the given prefix.
func (f StringField) HasPrefix(s string) Predicate { return f.ref.HasPrefix(s) }

// HasSuffix returns a predicate that checks if the field has the given suffix.
func (f StringField) HasSuffix(s string) Predicate { return f.ref.HasSuffix(s) }

// EqualFold returns a predicate that checks if the field equals the given value (case-insensitive).
func (f StringField) EqualFold(s string) Predicate { return f.ref.EqualFold(s) }

// Like returns a predicate that matches the field against a LIKE pattern.
func (f StringField) Like(pattern string) Predicate { return f.ref.Like(pattern) }

func anys[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
