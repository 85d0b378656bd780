package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is the in-process fallback backend used when no Redis
// address is configured. Entry TTL is fixed at construction; the
// per-call ttl argument is accepted for interface parity.
type MemoryStore struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 512
	}
	return &MemoryStore{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := m.lru.Get(key)
	return b, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.lru.Add(key, val)
	return nil
}
