// Package store provides the metadata store implementations: a mutex-guarded
// in-memory map for tests and single-node deployments, and a bbolt-backed
// store for durability.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tierfs/tierfs/pkg/types"
)

// Memory is an in-memory MetadataStore.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*types.Entry
}

// NewMemory creates an empty in-memory metadata store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*types.Entry)}
}

func (m *Memory) Get(ctx context.Context, key string) (*types.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key].Clone(), nil
}

func (m *Memory) Put(ctx context.Context, key string, entry *types.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry.Clone()
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok, nil
}

func (m *Memory) ListChildren(ctx context.Context, dirKey string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := childPrefix(dirKey)
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, 8)
	for key := range m.entries {
		if !strings.HasPrefix(key, prefix) || key == dirKey {
			continue
		}
		rest := key[len(prefix):]
		if strings.ContainsRune(rest, '/') {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Scan(ctx context.Context, dirKey string, recursive bool, fn func(key string, entry *types.Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := childPrefix(dirKey)

	m.mu.RLock()
	keys := make([]string, 0, 16)
	for key := range m.entries {
		if !strings.HasPrefix(key, prefix) || key == dirKey {
			continue
		}
		if !recursive && strings.ContainsRune(key[len(prefix):], '/') {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	snapshot := make([]*types.Entry, len(keys))
	for i, key := range keys {
		snapshot[i] = m.entries[key].Clone()
	}
	m.mu.RUnlock()

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(key, snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// childPrefix returns the key prefix shared by all descendants of dirKey.
// Keys are "namespace\x00/canonical/path"; the root path already ends in
// '/' so the prefix math differs for it.
func childPrefix(dirKey string) string {
	if strings.HasSuffix(dirKey, "/") {
		return dirKey
	}
	return dirKey + "/"
}
