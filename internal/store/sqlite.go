package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

// SQLiteStore implements weather.Store on SQLite. Uniqueness is enforced by
// a UNIQUE index on (location_key, date_for, lead_days).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn, configures WAL mode and migrates it.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Pragmas are per connection; a single connection also serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS forecast_records (
	id           TEXT PRIMARY KEY,
	seq          INTEGER NOT NULL,
	location     TEXT NOT NULL,
	location_key TEXT NOT NULL,
	date_for     TEXT NOT NULL,
	lead_days    INTEGER NOT NULL,
	collected_at TEXT NOT NULL,
	payload      TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_forecast_records_key
	ON forecast_records(location_key, date_for, lead_days);
CREATE INDEX IF NOT EXISTS idx_forecast_records_seq ON forecast_records(seq);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts rec; an existing key leaves the table untouched.
func (s *SQLiteStore) Append(ctx context.Context, rec weather.ForecastRecord) (weather.AppendResult, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return weather.Saved, fmt.Errorf("sqlite: encode record: %w", err)
	}
	key := rec.Key()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO forecast_records (id, seq, location, location_key, date_for, lead_days, collected_at, payload)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM forecast_records), ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_key, date_for, lead_days) DO NOTHING`,
		uuid.NewString(),
		rec.Location,
		key.Location,
		key.DateFor,
		key.LeadDays,
		rec.CollectedAt.Format(weather.TimestampLayout),
		string(payload),
	)
	if err != nil {
		return weather.Saved, fmt.Errorf("sqlite: insert record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return weather.Saved, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		log.Info().Str("record", key.String()).Msg("duplicate skipped")
		return weather.SkippedDuplicate, nil
	}
	return weather.Saved, nil
}

// All returns every record in insertion order. Rows whose payload no longer
// decodes are skipped with a warning.
func (s *SQLiteStore) All(ctx context.Context) ([]weather.ForecastRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM forecast_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query records: %w", err)
	}
	defer rows.Close()

	var out []weather.ForecastRecord
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		var rec weather.ForecastRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("skipping undecodable record")
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate records: %w", err)
	}
	return out, nil
}
