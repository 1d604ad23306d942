package cache

import (
	"sync"
	"time"
)

type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Expired reports whether the entry has a deadline at or before now.
func (e Entry[V]) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// TTLMap is a mutex-guarded map whose entries may carry an expiry. Expired
// entries are invisible to GetFresh and removed by Sweep; a zero expiry
// never lapses.
type TTLMap[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]Entry[V]
}

func NewTTLMap[K comparable, V any]() *TTLMap[K, V] {
	return &TTLMap[K, V]{items: map[K]Entry[V]{}}
}

func (m *TTLMap[K, V]) GetFresh(key K, now time.Time) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || it.Expired(now) {
		return zero, false
	}
	return it.Value, true
}

// Take returns a fresh value and removes the key in one step.
func (m *TTLMap[K, V]) Take(key K, now time.Time) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return zero, false
	}
	delete(m.items, key)
	if it.Expired(now) {
		return zero, false
	}
	return it.Value, true
}

func (m *TTLMap[K, V]) SetWithTTL(key K, value V, now time.Time, ttl time.Duration) {
	exp := time.Time{}
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	m.SetWithExpiry(key, value, exp)
}

func (m *TTLMap[K, V]) SetWithExpiry(key K, value V, expiresAt time.Time) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.items[key] = Entry[V]{Value: value, ExpiresAt: expiresAt}
	m.mu.Unlock()
}

func (m *TTLMap[K, V]) Delete(key K) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

// Sweep drops every entry expired at now and returns how many went.
func (m *TTLMap[K, V]) Sweep(now time.Time) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, it := range m.items {
		if it.Expired(now) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

// Entries returns a snapshot copy including expired entries.
func (m *TTLMap[K, V]) Entries() map[K]Entry[V] {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[K]Entry[V], len(m.items))
	for k, it := range m.items {
		out[k] = it
	}
	return out
}
