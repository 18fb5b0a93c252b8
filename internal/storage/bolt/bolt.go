package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goodtune/fieldtrack/internal/storage"
	"go.etcd.io/bbolt"
)

const bucketKV = "kv"

// Store implements storage.KeyValueStore using bbolt. Every key lives in a
// single bucket; values are stored verbatim.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed key-value store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketKV)); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketKV, err)
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketKV))
		if b == nil {
			return storage.ErrNotFound
		}
		data := b.Get([]byte(key))
		if data == nil {
			return storage.ErrNotFound
		}
		// data is only valid for the life of the transaction
		value = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketKV))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucketKV)
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketKV))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Clear removes every key.
func (s *Store) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tx.Bucket([]byte(bucketKV)) != nil {
			if err := tx.DeleteBucket([]byte(bucketKV)); err != nil {
				return fmt.Errorf("delete bucket %s: %w", bucketKV, err)
			}
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketKV)); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketKV, err)
		}
		return nil
	})
}

