package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierfs/tierfs/pkg/types"
)

func blobStores(t *testing.T) map[string]types.BlobStore {
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "blobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return map[string]types.BlobStore{
		"memory": NewMemory(),
		"bolt":   bolt,
	}
}

func TestPutGetHead(t *testing.T) {
	ctx := context.Background()
	for name, s := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Put(ctx, "k", []byte("hello"), types.TierHot))
			data, found, err := s.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, []byte("hello"), data)

			info, err := s.Head(ctx, "k")
			require.NoError(t, err)
			require.NotNil(t, info)
			assert.Equal(t, int64(5), info.Size)
			assert.Equal(t, types.TierHot, info.Tier)

			info, err = s.Head(ctx, "absent")
			require.NoError(t, err)
			assert.Nil(t, info)
		})
	}
}

func TestGetRange(t *testing.T) {
	ctx := context.Background()
	for name, s := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "k", []byte("0123456789"), types.TierHot))

			for _, test := range []struct {
				start, end int64
				want       string
			}{
				{0, 3, "0123"},
				{4, 4, "4"},
				{5, -1, "56789"},
				{8, 100, "89"},
				{100, 200, ""},
			} {
				data, found, err := s.GetRange(ctx, "k", test.start, test.end)
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, test.want, string(data), "range [%d,%d]", test.start, test.end)
			}
		})
	}
}

func TestCopyAndTiers(t *testing.T) {
	ctx := context.Background()
	for name, s := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "src", []byte("data"), types.TierWarm))
			require.NoError(t, s.Copy(ctx, "src", "dst"))

			data, found, err := s.Get(ctx, "dst")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "data", string(data))

			tier, found, err := s.GetTier(ctx, "dst")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, types.TierWarm, tier)

			require.NoError(t, s.SetTier(ctx, "dst", types.TierCold))
			tier, _, err = s.GetTier(ctx, "dst")
			require.NoError(t, err)
			assert.Equal(t, types.TierCold, tier)

			// SetTier on an absent key is a no-op, not an error.
			require.NoError(t, s.SetTier(ctx, "absent", types.TierHot))
			_, found, err = s.GetTier(ctx, "absent")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "k", []byte("x"), types.TierHot))
			require.NoError(t, s.Delete(ctx, "k"))
			_, found, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, found)
			require.NoError(t, s.Delete(ctx, "k"))
		})
	}
}

func TestPutStoresCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "k", data, types.TierHot))
	data[0] = 'z'

	got, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestClipRange(t *testing.T) {
	data := []byte("abcdef")
	assert.Equal(t, "abc", string(ClipRange(data, 0, 2)))
	assert.Equal(t, "def", string(ClipRange(data, 3, -1)))
	assert.Equal(t, "", string(ClipRange(data, 10, 20)))
	assert.Equal(t, "abcdef", string(ClipRange(data, -5, 99)))
}
