package blob

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/tierfs/tierfs/pkg/types"
)

var (
	blobsBucket = []byte("blobs")
	tiersBucket = []byte("tiers")
)

// Bolt is a bbolt-backed BlobStore holding every tier locally. Suited to
// single-node deployments where "tier" is a placement label rather than a
// physically distinct medium.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the blob database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(blobsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(tiersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var data []byte
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(blobsBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		data = make([]byte, len(raw))
		copy(data, raw)
		return nil
	})
	return data, found, err
}

func (b *Bolt) GetRange(ctx context.Context, key string, start, end int64) ([]byte, bool, error) {
	data, found, err := b.Get(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	return ClipRange(data, start, end), true, nil
}

func (b *Bolt) Put(ctx context.Context, key string, data []byte, tier types.Tier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(blobsBucket).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(tiersBucket).Put([]byte(key), []byte(tier))
	})
}

func (b *Bolt) Head(ctx context.Context, key string) (*types.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var info *types.BlobInfo
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(blobsBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		tier := tx.Bucket(tiersBucket).Get([]byte(key))
		info = &types.BlobInfo{Size: int64(len(raw)), Tier: types.Tier(tier)}
		return nil
	})
	return info, err
}

func (b *Bolt) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		blobs := tx.Bucket(blobsBucket)
		raw := blobs.Get([]byte(src))
		if raw == nil {
			return nil
		}
		data := make([]byte, len(raw))
		copy(data, raw)
		if err := blobs.Put([]byte(dst), data); err != nil {
			return err
		}
		tiers := tx.Bucket(tiersBucket)
		if tier := tiers.Get([]byte(src)); tier != nil {
			return tiers.Put([]byte(dst), tier)
		}
		return nil
	})
}

func (b *Bolt) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(blobsBucket).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(tiersBucket).Delete([]byte(key))
	})
}

func (b *Bolt) GetTier(ctx context.Context, key string) (types.Tier, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var tier types.Tier
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(tiersBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		tier = types.Tier(raw)
		return nil
	})
	return tier, found, err
}

func (b *Bolt) SetTier(ctx context.Context, key string, tier types.Tier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(blobsBucket).Get([]byte(key)) == nil {
			return nil
		}
		return tx.Bucket(tiersBucket).Put([]byte(key), []byte(tier))
	})
}

func (b *Bolt) Close() error { return b.db.Close() }
