package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/tierfs/tierfs/pkg/types"
)

var entriesBucket = []byte("entries")

// Bolt is a bbolt-backed MetadataStore. Entries are stored as JSON under
// their namespaced path key; bbolt's sorted key space makes the prefix
// scans behind ListChildren and Scan cheap.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the metadata database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(ctx context.Context, key string) (*types.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entry *types.Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(entriesBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		entry = new(types.Entry)
		return json.Unmarshal(raw, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (b *Bolt) Put(ctx context.Context, key string, entry *types.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(key), raw)
	})
}

func (b *Bolt) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Delete([]byte(key))
	})
}

func (b *Bolt) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(entriesBucket).Get([]byte(key)) != nil
		return nil
	})
	return ok, err
}

func (b *Bolt) ListChildren(ctx context.Context, dirKey string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := childPrefix(dirKey)
	var names []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			rest := string(k)[len(prefix):]
			if rest == "" || strings.ContainsRune(rest, '/') {
				continue
			}
			names = append(names, rest)
		}
		return nil
	})
	return names, err
}

func (b *Bolt) Scan(ctx context.Context, dirKey string, recursive bool, fn func(key string, entry *types.Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := childPrefix(dirKey)
	// Collect under the read transaction, call back outside it, so fn can
	// issue store operations of its own.
	type rec struct {
		key   string
		entry *types.Entry
	}
	var recs []rec
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			key := string(k)
			rest := key[len(prefix):]
			if rest == "" {
				continue
			}
			if !recursive && strings.ContainsRune(rest, '/') {
				continue
			}
			entry := new(types.Entry)
			if err := json.Unmarshal(v, entry); err != nil {
				return err
			}
			recs = append(recs, rec{key: key, entry: entry})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r.key, r.entry); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bolt) Close() error { return b.db.Close() }
