package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

// lockRetry is how often a blocked caller polls for the file lock.
const lockRetry = 25 * time.Millisecond

// JSONFileStore keeps every record in a single JSON array file, rewritten in
// full on each successful append. The whole load-check-append-write sequence
// runs under the mutex and an exclusive lock on path+".lock", so appends from
// other goroutines or other processes cannot lose updates.
//
// Entries that do not decode as records (for example hand-written history)
// are kept verbatim across rewrites but ignored for lookups.
type JSONFileStore struct {
	mu    sync.Mutex
	path  string
	flock *flock.Flock
}

// NewJSONFileStore creates a store backed by path. The file is created on
// the first append.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path, flock: flock.New(path + ".lock")}
}

// lock takes the cross-process file lock, shared for reads and exclusive for
// writes. Must be called with mu held.
func (s *JSONFileStore) lock(ctx context.Context, exclusive bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	try := s.flock.TryRLockContext
	if exclusive {
		try = s.flock.TryLockContext
	}
	if _, err := try(ctx, lockRetry); err != nil {
		return nil, fmt.Errorf("store: lock %s: %w", s.flock.Path(), err)
	}
	return func() {
		if err := s.flock.Unlock(); err != nil {
			log.Warn().Err(err).Str("path", s.flock.Path()).Msg("could not release store lock")
		}
	}, nil
}

// Path returns the backing file path.
func (s *JSONFileStore) Path() string {
	return s.path
}

type snapshot struct {
	raw     []json.RawMessage
	records []weather.ForecastRecord
	corrupt bool
}

// load reads the collection. A missing file is empty; an unreadable or
// malformed file is treated as empty with a warning. Must be called with mu
// and the file lock held.
func (s *JSONFileStore) load() snapshot {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot{}
	}
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("store file unreadable; treating as empty")
		return snapshot{corrupt: true}
	}
	if len(data) == 0 {
		return snapshot{}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// A single object is accepted as a one-element collection.
		var single json.RawMessage
		if err2 := json.Unmarshal(data, &single); err2 != nil || len(single) == 0 || single[0] != '{' {
			log.Warn().Err(err).Str("path", s.path).Msg("store file is not valid JSON; treating as empty")
			return snapshot{corrupt: true}
		}
		raw = []json.RawMessage{single}
	}

	snap := snapshot{raw: raw, records: make([]weather.ForecastRecord, 0, len(raw))}
	for i, entry := range raw {
		var rec weather.ForecastRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			log.Debug().Err(err).Int("index", i).Str("path", s.path).Msg("skipping foreign store entry")
			continue
		}
		snap.records = append(snap.records, rec)
	}
	return snap
}

// Append persists rec unless a record with the same location
// (case-insensitive), target date and lead time exists.
func (s *JSONFileStore) Append(ctx context.Context, rec weather.ForecastRecord) (weather.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock(ctx, true)
	if err != nil {
		return weather.Saved, err
	}
	defer unlock()

	snap := s.load()
	key := rec.Key()
	for _, existing := range snap.records {
		if existing.Key() == key {
			log.Info().Str("record", key.String()).Msg("duplicate skipped")
			return weather.SkippedDuplicate, nil
		}
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return weather.Saved, fmt.Errorf("store: encode record: %w", err)
	}

	if snap.corrupt {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if err := os.Rename(s.path, backup); err != nil {
			log.Warn().Err(err).Str("path", s.path).Msg("could not back up corrupt store file")
		} else {
			log.Warn().Str("backup", backup).Msg("corrupt store file moved aside; starting a fresh collection")
		}
	}

	out, err := json.MarshalIndent(append(snap.raw, encoded), "", "  ")
	if err != nil {
		return weather.Saved, fmt.Errorf("store: encode collection: %w", err)
	}
	if err := renameio.WriteFile(s.path, out, 0o644); err != nil {
		return weather.Saved, fmt.Errorf("store: write %s: %w", s.path, err)
	}
	return weather.Saved, nil
}

// All returns every decodable record in file order.
func (s *JSONFileStore) All(ctx context.Context) ([]weather.ForecastRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock(ctx, false)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.load().records, nil
}
