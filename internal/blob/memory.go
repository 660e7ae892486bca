// Package blob provides the content store implementations. Each one places
// bytes into hot, warm, or cold storage and answers tier queries: an
// in-memory store for tests, a bbolt store for single-node durability, and
// an S3 store that maps tiers onto object storage classes.
package blob

import (
	"context"
	"sync"

	"github.com/tierfs/tierfs/pkg/types"
)

type memBlob struct {
	data []byte
	tier types.Tier
}

// Memory is an in-memory BlobStore.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]memBlob)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, true, nil
}

func (m *Memory) GetRange(ctx context.Context, key string, start, end int64) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return ClipRange(b.data, start, end), true, nil
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, tier types.Tier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = memBlob{data: stored, tier: tier}
	return nil
}

func (m *Memory) Head(ctx context.Context, key string) (*types.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, nil
	}
	return &types.BlobInfo{Size: int64(len(b.data)), Tier: b.tier}, nil
}

func (m *Memory) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[src]
	if !ok {
		return nil
	}
	data := make([]byte, len(b.data))
	copy(data, b.data)
	m.blobs[dst] = memBlob{data: data, tier: b.tier}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *Memory) GetTier(ctx context.Context, key string) (types.Tier, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return "", false, nil
	}
	return b.tier, true, nil
}

func (m *Memory) SetTier(ctx context.Context, key string, tier types.Tier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil
	}
	b.tier = tier
	m.blobs[key] = b
	return nil
}

func (m *Memory) Close() error { return nil }

// ClipRange returns bytes [start, end] inclusive, clipped to the data.
// A negative end means through the final byte. Out-of-range reads yield an
// empty slice rather than an error.
func ClipRange(data []byte, start, end int64) []byte {
	size := int64(len(data))
	if start < 0 {
		start = 0
	}
	if end < 0 || end >= size {
		end = size - 1
	}
	if start > end || start >= size {
		return []byte{}
	}
	out := make([]byte, end-start+1)
	copy(out, data[start:end+1])
	return out
}
