// Package badger provides a BadgerDB-backed implementation of
// storage.KeyValueStore.
//
// BadgerDB suits devices that write the queue often: it is an LSM store, so
// whole-list rewrites of the location queue append to the value log instead
// of rewriting B+tree pages. A GC loop reclaims the value log in the
// background.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/rs/zerolog"
)

// Config holds configuration for a BadgerDB store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Tests only.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Store implements storage.KeyValueStore using BadgerDB.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// badgerLogger adapts zerolog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}

// Open opens a BadgerDB store with the given configuration.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	logger = logger.With().Str("component", "badger").Logger()
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	} else {
		close(s.doneCh)
	}

	return s, nil
}

// OpenInMemory opens an in-memory store. Data is lost when closed.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true}, zerolog.Nop())
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
	return s.db.Close()
}

// Get returns the value stored under key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Clear removes every key.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropAll()
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing worth collecting
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn().Err(err).Msg("Value log GC failed")
			}
		}
	}
}
