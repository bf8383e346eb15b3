// Package batch holds the generic helpers used to resolve relations with
// one query per relation level.
//
//	keys := batch.Keys(parents, func(p *Instance) (any, bool) { return p.PK(), true })
//	children := loadWhereIn(keys)
//	groups := batch.GroupByKey(children, func(c *Instance) any { return c.Get("parent_id") })
//	ordered := batch.OrderGroupsByKeys(keys, groups)
package batch

import "errors"

// ErrNotFound is reported by OrderByKeys for keys without a value.
var ErrNotFound = errors.New("batch: key not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// Keys returns the distinct keys of values in first-seen order. Values for
// which keyFn reports false are skipped.
func Keys[K comparable, V any](values []V, keyFn func(V) (K, bool)) []K {
	seen := make(map[K]struct{}, len(values))
	keys := make([]K, 0, len(values))
	for _, v := range values {
		k, ok := keyFn(v)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// OrderByKeys reorders values to match keys. Missing values are zero values
// with ErrNotFound at the same index.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// GroupByKey groups values by key, keeping their order within each group.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the group of every key in key order. Keys
// without a group get an empty, non-nil slice.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		if g, ok := groups[key]; ok {
			result[i] = g
		} else {
			result[i] = []V{}
		}
	}
	return result
}

// Dedup returns values without repetitions of the same key, keeping the
// first occurrence.
func Dedup[K comparable, V any](values []V, keyFn KeyFunc[K, V]) []V {
	seen := make(map[K]struct{}, len(values))
	out := make([]V, 0, len(values))
	for _, v := range values {
		k := keyFn(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
