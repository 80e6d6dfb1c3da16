// Package syncmap provides a typed concurrent map whose sweeps operate on a
// snapshot, so callers may mutate the live map while iterating.
package syncmap

import "sync"

// Entry is a key/value pair captured by Snapshot.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Map is a typed wrapper over sync.Map. Every single-key operation is atomic.
// The zero value is ready to use.
type Map[K comparable, V any] struct {
	m sync.Map
}

func (m *Map[K, V]) Load(key K) (V, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (m *Map[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

// LoadOrStore returns the existing value when present, otherwise stores value.
// loaded reports whether the value was already present.
func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	v, loaded := m.m.LoadOrStore(key, value)
	return v.(V), loaded
}

// Delete removes key and reports whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	_, ok := m.m.LoadAndDelete(key)
	return ok
}

// CompareAndSwap swaps old for new when the stored value equals old. V must be
// comparable at runtime, pointers are the usual choice.
func (m *Map[K, V]) CompareAndSwap(key K, old, new V) bool {
	return m.m.CompareAndSwap(key, old, new)
}

// Len counts the entries. The result is a point in time figure.
func (m *Map[K, V]) Len() int {
	n := 0
	m.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Snapshot copies the current entries into a slice. Mutations made after the
// call do not affect the returned entries.
func (m *Map[K, V]) Snapshot() []Entry[K, V] {
	entries := make([]Entry[K, V], 0, 16)
	m.m.Range(func(k, v any) bool {
		entries = append(entries, Entry[K, V]{Key: k.(K), Value: v.(V)})
		return true
	})
	return entries
}
