package maps

import (
	"sync/atomic"

	"github.com/cornelk/hashmap"
)

// cell holds a value so that overwriting a key never goes through
// hashmap.Set. Set on a key inserted with GetOrInsert breaks the list that
// Range walks, dropping entries from iteration.
type cell[V any] struct {
	p atomic.Pointer[V]
}

func newCell[V any](v V) *cell[V] {
	c := &cell[V]{}
	c.p.Store(&v)
	return c
}

func (c *cell[V]) load() V { return *c.p.Load() }

// CornelkMap wraps cornelk/hashmap to implement ConcurrentMap. Each key is
// inserted once; later stores replace the value inside its cell.
type CornelkMap[K Integer, V any] struct {
	m *hashmap.Map[K, *cell[V]]
}

// NewCornelkMap creates a new CornelkMap.
func NewCornelkMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &CornelkMap[K, V]{m: hashmap.New[K, *cell[V]]()}
}

func (m *CornelkMap[K, V]) Load(key K) (V, bool) {
	c, ok := m.m.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return c.load(), true
}

func (m *CornelkMap[K, V]) Store(key K, value V) {
	if c, loaded := m.m.GetOrInsert(key, newCell(value)); loaded {
		c.p.Store(&value)
	}
}

func (m *CornelkMap[K, V]) Delete(key K) { m.m.Del(key) }

// LoadAndDelete is not atomic: two callers may both observe the value.
// Registry removals run under the session lock, so this is acceptable there.
func (m *CornelkMap[K, V]) LoadAndDelete(key K) (V, bool) {
	c, ok := m.m.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	m.m.Del(key)
	return c.load(), true
}

// LoadOrStore builds the value eagerly; GetOrInsert itself is atomic.
func (m *CornelkMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	if c, ok := m.m.Get(key); ok {
		return c.load(), true
	}
	c, loaded := m.m.GetOrInsert(key, newCell(valueFactory()))
	return c.load(), loaded
}

func (m *CornelkMap[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(k K, c *cell[V]) bool { return f(k, c.load()) })
}

func (m *CornelkMap[K, V]) Len() int { return m.m.Len() }
