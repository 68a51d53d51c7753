package cache

import (
	"strconv"
	"sync"
	"time"
)

// Memo is a compute-once cache keyed by string. Concurrent callers of the
// same key share one computation; errors are never cached, so a failed
// fetch is retried by the next caller.
//
// Expiry is handled outside the cache: callers bucket wall-clock time into
// the key (see Key), so a stale entry is simply never asked for again.
type Memo[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
}

type entry[T any] struct {
	mu    sync.Mutex
	done  bool
	value T
}

func NewMemo[T any]() *Memo[T] {
	return &Memo[T]{entries: make(map[string]*entry[T])}
}

// GetOrCompute returns the cached value for key, computing and storing it
// on first use.
func (m *Memo[T]) GetOrCompute(key string, compute func() (T, error)) (T, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry[T]{}
		m.entries[key] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return e.value, nil
	}

	value, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	e.value = value
	e.done = true
	return value, nil
}

// Purge drops every entry and returns how many were held.
func (m *Memo[T]) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := len(m.entries)
	m.entries = make(map[string]*entry[T])
	return count
}

// Key builds a cache key from the request coordinates plus a coarse time
// bucket derived from the TTL. A non-empty nonce busts the cache for one
// forced refresh without touching other callers' entries.
func Key(underlying, date string, now time.Time, ttl time.Duration, nonce string) string {
	bucket := int64(0)
	if ttl > 0 {
		bucket = now.Unix() / int64(ttl/time.Second)
	}
	return underlying + "::" + date + "::" + strconv.FormatInt(bucket, 10) + "::" + nonce
}
