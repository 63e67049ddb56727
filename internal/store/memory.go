package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

var (
	// ErrNotFound is returned when no records exist for a requested location.
	ErrNotFound = errors.New("no forecast records for location")
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
type MemoryStore struct {
	mu sync.RWMutex

	records []weather.ForecastRecord
	keys    map[weather.RecordKey]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[weather.RecordKey]struct{}),
	}
}

// Append stores rec unless its key is already present.
func (s *MemoryStore) Append(_ context.Context, rec weather.ForecastRecord) (weather.AppendResult, error) {
	key := rec.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return weather.SkippedDuplicate, nil
	}
	s.keys[key] = struct{}{}
	s.records = append(s.records, rec)
	return weather.Saved, nil
}

// All returns a copy of every stored record in insertion order.
func (s *MemoryStore) All(_ context.Context) ([]weather.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.ForecastRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FilterByLocation returns the records whose location matches name
// case-insensitively, or ErrNotFound when there are none.
func FilterByLocation(records []weather.ForecastRecord, name string) ([]weather.ForecastRecord, error) {
	var result []weather.ForecastRecord
	for _, r := range records {
		if strings.EqualFold(strings.TrimSpace(r.Location), strings.TrimSpace(name)) {
			result = append(result, r)
		}
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Locations returns the distinct location names in records, sorted, using
// the first spelling seen for each.
func Locations(records []weather.ForecastRecord) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range records {
		k := strings.ToLower(strings.TrimSpace(r.Location))
		if seen[k] {
			continue
		}
		seen[k] = true
		names = append(names, r.Location)
	}
	sort.Strings(names)
	return names
}
