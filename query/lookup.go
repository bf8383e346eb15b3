package query

import (
	"fmt"
	"strings"

	"github.com/KipianiNikoloz/blazeorm/schema"
)

// Lookup builds a predicate from a "field__operator" expression:
//
//	query.Lookup(post, "author", 1)              // author_id = 1
//	query.Lookup(post, "created_at__gte", t)
//	query.Lookup(post, "title__icontains", "go")
//	query.Lookup(post, "id__in", []int{1, 2, 3})
//
// A missing operator means exact. Unknown fields fail with
// *blazeorm.UnknownFieldError.
func Lookup(e *schema.Entity, expr string, v any) (Predicate, error) {
	name, op := expr, "exact"
	if i := strings.LastIndex(expr, schema.PathSeparator); i > 0 {
		if _, ok := lookups[expr[i+len(schema.PathSeparator):]]; ok {
			name, op = expr[:i], expr[i+len(schema.PathSeparator):]
		}
	}
	ref, err := Field(e, name)
	if err != nil {
		return nil, err
	}
	return lookups[op](ref, v)
}

var lookups = map[string]func(Ref, any) (Predicate, error){
	"exact": func(r Ref, v any) (Predicate, error) { return r.EQ(v), nil },
	"neq":   func(r Ref, v any) (Predicate, error) { return r.NEQ(v), nil },
	"gt":    func(r Ref, v any) (Predicate, error) { return r.GT(v), nil },
	"gte":   func(r Ref, v any) (Predicate, error) { return r.GTE(v), nil },
	"lt":    func(r Ref, v any) (Predicate, error) { return r.LT(v), nil },
	"lte":   func(r Ref, v any) (Predicate, error) { return r.LTE(v), nil },
	"in":    func(r Ref, v any) (Predicate, error) { return r.In(expand(v)...), nil },
	"notin": func(r Ref, v any) (Predicate, error) { return r.NotIn(expand(v)...), nil },
	"isnull": func(r Ref, v any) (Predicate, error) {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("query: isnull lookup on %q expects bool, got %T", r.Name(), v)
		}
		if b {
			return r.IsNull(), nil
		}
		return r.NotNull(), nil
	},
	"like":       textLookup(Ref.Like),
	"contains":   textLookup(Ref.Contains),
	"icontains":  textLookup(Ref.ContainsFold),
	"iexact":     textLookup(Ref.EqualFold),
	"startswith": textLookup(Ref.HasPrefix),
	"endswith":   textLookup(Ref.HasSuffix),
}

func textLookup(fn func(Ref, string) Predicate) func(Ref, any) (Predicate, error) {
	return func(r Ref, v any) (Predicate, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("query: text lookup on %q expects string, got %T", r.Name(), v)
		}
		return fn(r, s), nil
	}
}
