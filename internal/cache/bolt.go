package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/infrastructure/persistence/boltdb"
	"go.etcd.io/bbolt"
)

// boltEntry is the on-disk envelope of a transient.
type boltEntry struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Data      json.RawMessage `json:"data"`
}

// BoltStore keeps transients in the agent database so they survive
// restarts. Expired entries are dropped lazily on read.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltStore wraps an open database; the transients bucket is created if
// missing.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltdb.BucketTransients))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transients bucket: %w", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

// Get implements Store.
func (b *BoltStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		entry   boltEntry
		found   bool
		expired bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(boltdb.BucketTransients)).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decode transient %s: %w", key, err)
		}
		if !b.now().Before(entry.ExpiresAt) {
			expired = true
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if expired {
		_ = b.Delete(context.Background(), key)
	}
	if !found {
		return nil, false, nil
	}
	return []byte(entry.Data), true, nil
}

// Set implements Store. Values must be valid JSON.
func (b *BoltStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(boltEntry{
		ExpiresAt: b.now().Add(ttl),
		Data:      json.RawMessage(value),
	})
	if err != nil {
		return fmt.Errorf("encode transient %s: %w", key, err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltdb.BucketTransients)).Put([]byte(key), data)
	})
}

// Delete implements Store.
func (b *BoltStore) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltdb.BucketTransients)).Delete([]byte(key))
	})
}

// DeletePrefix implements Store.
func (b *BoltStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltdb.BucketTransients))
		var keys [][]byte
		c := bucket.Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
