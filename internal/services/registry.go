package services

import (
	"sort"
	"sync"
)

type registryEntry[T any] struct {
	mu      sync.Mutex
	value   *T
	removed bool
}

// registry owns sale entities keyed by id. Each entity has its own mutex so
// operations on one sale are serialized while different sales proceed in
// parallel. The map lock is never held while waiting for an entity lock.
type registry[T any] struct {
	mu    sync.RWMutex
	items map[string]*registryEntry[T]
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{items: make(map[string]*registryEntry[T])}
}

func (r *registry[T]) add(id string, value *T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[id] = &registryEntry[T]{value: value}
}

// with runs fn while holding the entity lock. It returns false when the id
// is unknown or was removed before the lock was acquired.
func (r *registry[T]) with(id string, fn func(value *T) error) (bool, error) {
	r.mu.RLock()
	entry, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return false, nil
	}
	return true, fn(entry.value)
}

// remove must be called from inside with() for the same id.
func (r *registry[T]) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.items[id]; ok {
		entry.removed = true
		delete(r.items, id)
	}
}

// each runs fn on every live entity in id order, holding that entity's lock
// for the duration of the call. fn must not call back into the registry.
func (r *registry[T]) each(fn func(value *T)) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.items))
	entries := make(map[string]*registryEntry[T], len(r.items))
	for id, entry := range r.items {
		ids = append(ids, id)
		entries[id] = entry
	}
	r.mu.RUnlock()

	sort.Strings(ids)

	for _, id := range ids {
		entry := entries[id]
		entry.mu.Lock()
		if !entry.removed {
			fn(entry.value)
		}
		entry.mu.Unlock()
	}
}

// snapshot copies every entity accepted by keep, ordered by id.
func (r *registry[T]) snapshot(keep func(value *T) bool) []T {
	var result []T
	r.each(func(value *T) {
		if keep(value) {
			result = append(result, *value)
		}
	})
	if result == nil {
		result = []T{}
	}
	return result
}
