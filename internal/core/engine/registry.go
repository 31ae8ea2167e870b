package engine

import (
	"sort"
	"sync"
)

// registry maps a domain key to lazily created, independently locked state.
// Lookups for different domains never contend on a shared lock.
type registry[T any] struct {
	entries sync.Map
}

func (r *registry[T]) get(domain string) (*T, bool) {
	value, ok := r.entries.Load(domain)
	if !ok {
		return nil, false
	}
	return value.(*T), true
}

func (r *registry[T]) getOrCreate(domain string, create func() *T) *T {
	if value, ok := r.entries.Load(domain); ok {
		return value.(*T)
	}
	value, _ := r.entries.LoadOrStore(domain, create())
	return value.(*T)
}

// keys returns the registered domains in lexical order.
func (r *registry[T]) keys() []string {
	keys := make([]string, 0)
	r.entries.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

func (r *registry[T]) each(fn func(domain string, value *T)) {
	for _, key := range r.keys() {
		if value, ok := r.get(key); ok {
			fn(key, value)
		}
	}
}
