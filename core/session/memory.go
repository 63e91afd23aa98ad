package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps encoded records in a bounded, optionally expiring LRU.
// Records are stored encoded so callers never share state with the cache.
type MemoryStore struct {
	cache *expirable.LRU[string, []byte]
}

// NewMemoryStore creates a store holding at most size records. A size of
// zero disables the bound; a ttl of zero disables expiry.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size < 0 {
		size = 0
	}
	return &MemoryStore{cache: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, key string) (Record, error) {
	data, ok := m.cache.Get(key)
	if !ok {
		return Record{}, ErrNotFound
	}
	return Decode(data)
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, key string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	m.cache.Add(key, data)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

// Len reports the number of cached records.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
