package boltdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	"go.etcd.io/bbolt"
)

// Bucket names shared by the option store and the transient cache.
const (
	BucketOptions    = "options"
	BucketTransients = "transients"
)

// Open opens (creating if needed) the agent database at path and makes
// sure every named bucket exists.
func Open(path string, buckets ...string) (*bbolt.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, constants.DatabaseFilePerm, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
