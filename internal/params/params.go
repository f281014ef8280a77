// Package params wraps indexable values passed into plugin entry points so that
// lookup misses surface as classified errors instead of zero values.
//
// A miss is reported as CategoryNotYetExist when the wrapper was built with
// notYetExist set, meaning the key may appear once other plugins have run and
// the caller may retry. Otherwise it is CategoryNotFound and the caller should
// not retry.
package params

import (
	"fmt"
	"sort"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

// Param is a read-only lookup adapter over a map or slice.
type Param[K comparable, V any] struct {
	lookup      func(K) (V, bool)
	keys        func() []K
	notYetExist bool
}

// FromMap wraps m. The map is not copied.
func FromMap[K comparable, V any](m map[K]V, notYetExist bool) *Param[K, V] {
	return &Param[K, V]{
		lookup: func(key K) (V, bool) {
			v, ok := m[key]
			return v, ok
		},
		keys: func() []K {
			keys := make([]K, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool {
				return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
			})
			return keys
		},
		notYetExist: notYetExist,
	}
}

// FromSlice wraps s, indexed by position. Negative or out of range indexes miss.
func FromSlice[V any](s []V, notYetExist bool) *Param[int, V] {
	return &Param[int, V]{
		lookup: func(i int) (V, bool) {
			if i < 0 || i >= len(s) {
				var zero V
				return zero, false
			}
			return s[i], true
		},
		keys: func() []int {
			keys := make([]int, len(s))
			for i := range s {
				keys[i] = i
			}
			return keys
		},
		notYetExist: notYetExist,
	}
}

// Get returns the value stored under key.
func (p *Param[K, V]) Get(key K) (V, error) {
	if v, ok := p.lookup(key); ok {
		return v, nil
	}

	var zero V
	if p.notYetExist {
		return zero, errors.NotYetExist("parameter does not exist yet").
			WithContext("key", key).
			Build()
	}
	return zero, errors.NotFound("parameter not found").
		WithContext("key", key).
		Build()
}

// Has reports whether key is present.
func (p *Param[K, V]) Has(key K) bool {
	_, ok := p.lookup(key)
	return ok
}

// Keys returns the present keys. Map keys are sorted by their string form.
func (p *Param[K, V]) Keys() []K {
	return p.keys()
}
