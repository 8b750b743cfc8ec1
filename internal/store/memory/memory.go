// Package memory is a concurrency-safe in-process implementation of the
// persistent store, used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mohammed-shakir/weathercache/internal/store"
)

type Store struct {
	mu   sync.RWMutex
	data map[string][]store.Record

	// max records kept per location, 0 = unlimited
	maxHistory int
}

var _ store.Store = (*Store)(nil)

func New(maxHistory int) *Store {
	return &Store{
		data:       make(map[string][]store.Record),
		maxHistory: maxHistory,
	}
}

func (s *Store) Append(ctx context.Context, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	rec.Timestamp = rec.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	// history stays ordered by timestamp so trimming drops the oldest
	// records, not the earliest appended
	h := s.data[rec.Location]
	i := sort.Search(len(h), func(i int) bool { return h[i].Timestamp.After(rec.Timestamp) })
	h = append(h, store.Record{})
	copy(h[i+1:], h[i:])
	h[i] = rec
	if s.maxHistory > 0 && len(h) > s.maxHistory {
		h = append([]store.Record(nil), h[len(h)-s.maxHistory:]...)
	}
	s.data[rec.Location] = h
	return nil
}

// Latest returns the record with the newest timestamp, matching the
// ORDER BY recorded_at DESC of the SQL backend.
func (s *Store) Latest(ctx context.Context, location string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, fmt.Errorf("latest record: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.data[location]
	if len(h) == 0 {
		return store.Record{}, store.ErrNotFound
	}
	return h[len(h)-1], nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len counts records for a location.
func (s *Store) Len(location string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[location])
}
