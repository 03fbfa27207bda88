package settings

import (
	"fmt"

	"github.com/headwalluk/vulnz-agent/internal/infrastructure/persistence/boltdb"
	"go.etcd.io/bbolt"
)

// OptionStore persists options in the agent database.
type OptionStore struct {
	db *bbolt.DB
}

// NewOptionStore wraps an open database; the options bucket is created if
// missing.
func NewOptionStore(db *bbolt.DB) (*OptionStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltdb.BucketOptions))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create options bucket: %w", err)
	}
	return &OptionStore{db: db}, nil
}

// Get returns the stored value of key.
func (s *OptionStore) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(boltdb.BucketOptions)).Get([]byte(key))
		if data != nil {
			value = string(data)
			found = true
		}
		return nil
	})
	return value, found, err
}

// Set stores value under key.
func (s *OptionStore) Set(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltdb.BucketOptions)).Put([]byte(key), []byte(value))
	})
}

// Delete removes key; missing keys are not an error.
func (s *OptionStore) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltdb.BucketOptions)).Delete([]byte(key))
	})
}

// Origin implements Source.
func (s *OptionStore) Origin() Origin { return OriginOption }

// Lookup implements Source.
func (s *OptionStore) Lookup(setting Setting) (string, bool, error) {
	return s.Get(setting.Option)
}
