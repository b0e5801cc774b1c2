// Package flagstore is durable key/value storage for checkout flags.
//
// Writes are last-write-wins and no operation spans more than one key.
package flagstore

import (
	"context"
	"sync"
)

// Store is the persistence contract consumed by the checkout core.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Refresher is implemented by stores whose keys expire. Refresh restarts
// the expiry of the given keys; missing keys are ignored.
type Refresher interface {
	Refresh(ctx context.Context, keys ...string) error
}

// Refresh restarts key expiry when store supports it.
func Refresh(ctx context.Context, store Store, keys ...string) error {
	if r, ok := store.(Refresher); ok {
		return r.Refresh(ctx, keys...)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len reports the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Scoped prefixes every key with a namespace so that many checkout
// sessions can share one backend.
type Scoped struct {
	store  Store
	prefix string
}

func NewScoped(store Store, sessionID string) *Scoped {
	return &Scoped{store: store, prefix: "checkout:" + sessionID + ":"}
}

func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.prefix+key, value)
}

func (s *Scoped) Remove(ctx context.Context, key string) error {
	return s.store.Remove(ctx, s.prefix+key)
}

func (s *Scoped) Refresh(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	return Refresh(ctx, s.store, prefixed...)
}
