// Package history persists finished transcripts in a BadgerDB store.
//
// Records are keyed by "transcript:<created-at-nanos>:<id>" so lexicographic
// iteration returns them in chronological order.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a transcript does not exist in the store.
	ErrNotFound = errors.New("history: not found")
)

const keyPrefix = "transcript:"

// Record is one finished transcription.
type Record struct {
	// ID is a unique transcript identifier.
	ID string `json:"id"`

	// Text is the final recognized text.
	Text string `json:"text"`

	// CreatedAt is when the recording finished.
	CreatedAt time.Time `json:"created_at"`

	// Duration is the recording duration.
	Duration time.Duration `json:"duration,omitempty"`

	// Packets is the number of audio chunks sent.
	Packets uint64 `json:"packets,omitempty"`
}

// Store is a BadgerDB-backed transcript store.
type Store struct {
	db *badger.DB
}

// Options configures the store.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB in memory-only mode. Useful for tests.
	InMemory bool
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("history: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("history: open store: %w", err)
	}
	return &Store{db: db}, nil
}

func recordKey(createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", keyPrefix, createdAt.UnixNano(), id))
}

// Save stores a record. A missing ID or CreatedAt is filled in.
func (s *Store) Save(_ context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: encode record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.CreatedAt, rec.ID), value)
	})
}

// List iterates over all records in chronological order.
func (s *Store) List(_ context.Context) iter.Seq2[*Record, error] {
	prefix := []byte(keyPrefix)
	return func(yield func(*Record, error) bool) {
		err := s.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = prefix
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				val, err := it.Item().ValueCopy(nil)
				if err != nil {
					if !yield(nil, err) {
						return nil
					}
					continue
				}
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					if !yield(nil, fmt.Errorf("history: decode record: %w", err)) {
						return nil
					}
					continue
				}
				if !yield(&rec, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// Delete removes a record by ID. Returns ErrNotFound if no record has it.
func (s *Store) Delete(ctx context.Context, id string) error {
	var key []byte
	for rec, err := range s.List(ctx) {
		if err != nil {
			return err
		}
		if rec.ID == id {
			key = recordKey(rec.CreatedAt, rec.ID)
			break
		}
	}
	if key == nil {
		return ErrNotFound
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Clear removes all records.
func (s *Store) Clear(_ context.Context) error {
	return s.db.DropPrefix([]byte(keyPrefix))
}

// Close releases the store.
func (s *Store) Close() error {
	return s.db.Close()
}
