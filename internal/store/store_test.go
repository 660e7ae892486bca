package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierfs/tierfs/pkg/types"
)

func entry(typ types.EntryType, size int64) *types.Entry {
	return &types.Entry{Type: typ, Mode: types.TypeMode(typ) | 0o644, Nlink: 1, Size: size}
}

// Both drivers satisfy the same contract; run the suite over each.
func stores(t *testing.T) map[string]types.MetadataStore {
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return map[string]types.MetadataStore{
		"memory": NewMemory(),
		"bolt":   bolt,
	}
}

func TestGetPutDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Get(ctx, "ns\x00/a")
			require.NoError(t, err)
			assert.Nil(t, got, "absent key returns nil, not error")

			require.NoError(t, s.Put(ctx, "ns\x00/a", entry(types.EntryFile, 5)))
			got, err = s.Get(ctx, "ns\x00/a")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, int64(5), got.Size)

			ok, err := s.Exists(ctx, "ns\x00/a")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, s.Delete(ctx, "ns\x00/a"))
			ok, err = s.Exists(ctx, "ns\x00/a")
			require.NoError(t, err)
			assert.False(t, ok)

			// Deleting an absent key is not an error.
			require.NoError(t, s.Delete(ctx, "ns\x00/a"))
		})
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Put(ctx, "ns\x00/a", entry(types.EntryFile, 1)))

	got, err := s.Get(ctx, "ns\x00/a")
	require.NoError(t, err)
	got.Size = 999

	again, err := s.Get(ctx, "ns\x00/a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Size, "callers must not mutate stored entries")
}

func TestListChildren(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "ns\x00/dir", entry(types.EntryDirectory, 0)))
			require.NoError(t, s.Put(ctx, "ns\x00/dir/b", entry(types.EntryFile, 0)))
			require.NoError(t, s.Put(ctx, "ns\x00/dir/a", entry(types.EntryFile, 0)))
			require.NoError(t, s.Put(ctx, "ns\x00/dir/sub", entry(types.EntryDirectory, 0)))
			require.NoError(t, s.Put(ctx, "ns\x00/dir/sub/deep", entry(types.EntryFile, 0)))
			require.NoError(t, s.Put(ctx, "ns\x00/dirx", entry(types.EntryFile, 0)))
			require.NoError(t, s.Put(ctx, "other\x00/dir/z", entry(types.EntryFile, 0)))

			names, err := s.ListChildren(ctx, "ns\x00/dir")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "sub"}, names)

			// Root listing uses the trailing-slash key shape.
			rootNames, err := s.ListChildren(ctx, "ns\x00/")
			require.NoError(t, err)
			assert.Contains(t, rootNames, "dir")
			assert.Contains(t, rootNames, "dirx")
			assert.NotContains(t, rootNames, "z")
		})
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "ns\x00/d", entry(types.EntryDirectory, 0)))
			require.NoError(t, s.Put(ctx, "ns\x00/d/f1", entry(types.EntryFile, 0)))
			require.NoError(t, s.Put(ctx, "ns\x00/d/sub", entry(types.EntryDirectory, 0)))
			require.NoError(t, s.Put(ctx, "ns\x00/d/sub/f2", entry(types.EntryFile, 0)))

			var shallow []string
			require.NoError(t, s.Scan(ctx, "ns\x00/d", false, func(k string, _ *types.Entry) error {
				shallow = append(shallow, k)
				return nil
			}))
			assert.ElementsMatch(t, []string{"ns\x00/d/f1", "ns\x00/d/sub"}, shallow)

			var deep []string
			require.NoError(t, s.Scan(ctx, "ns\x00/d", true, func(k string, _ *types.Entry) error {
				deep = append(deep, k)
				return nil
			}))
			assert.ElementsMatch(t, []string{"ns\x00/d/f1", "ns\x00/d/sub", "ns\x00/d/sub/f2"}, deep)
		})
	}
}

func TestScanCancelledContext(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Scan(ctx, "ns\x00/", true, func(string, *types.Entry) error { return nil })
	assert.Error(t, err)
}
