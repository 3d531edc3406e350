// Copyright HCSS Utils, 2026. All rights reserved.

// Package store persists run state in a SQLite database: every resolved hit
// count and every finished year's outcome. A rerun of the same base query
// resumes from this state instead of re-issuing oracle calls, which matters
// when each call costs a multi-second politeness delay.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

const dbFile = "run-state.db"

// Store manages the run-state SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the run-state database under dir, creating the
// schema if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS hit_counts (
			key TEXT PRIMARY KEY,
			spec TEXT NOT NULL,
			count INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS year_outcomes (
			year INTEGER PRIMARY KEY,
			payload TEXT NOT NULL,
			completed_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// LookupCount returns the stored result for a cache key, if present.
func (s *Store) LookupCount(key string) (types.HitCountResult, bool, error) {
	var specJSON, status, createdAt string
	var count int
	err := s.db.QueryRow(
		`SELECT spec, count, status, created_at FROM hit_counts WHERE key = ?`, key,
	).Scan(&specJSON, &count, &status, &createdAt)
	if err == sql.ErrNoRows {
		return types.HitCountResult{}, false, nil
	}
	if err != nil {
		return types.HitCountResult{}, false, fmt.Errorf("querying hit count: %w", err)
	}

	var spec types.QuerySpec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return types.HitCountResult{}, false, fmt.Errorf("parsing stored spec: %w", err)
	}

	result := types.HitCountResult{
		Spec:   spec,
		Count:  count,
		Status: types.HitStatus(status),
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		result.Timestamp = t
	}
	return result, true, nil
}

// SaveCount stores a resolved result under its cache key. A repeated save for
// the same key keeps the first result, matching the immutability of
// HitCountResult.
func (s *Store) SaveCount(key string, result types.HitCountResult) error {
	specJSON, err := json.Marshal(result.Spec)
	if err != nil {
		return fmt.Errorf("marshaling spec: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO hit_counts (key, spec, count, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, string(specJSON), result.Count, string(result.Status),
		result.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting hit count: %w", err)
	}
	return nil
}

// LoadYear returns the stored outcome for a year, or nil if the year has not
// finished in any previous run.
func (s *Store) LoadYear(year int) (*types.YearOutcome, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM year_outcomes WHERE year = ?`, year,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying year %d: %w", year, err)
	}

	var outcome types.YearOutcome
	if err := json.Unmarshal([]byte(payload), &outcome); err != nil {
		return nil, fmt.Errorf("parsing year %d payload: %w", year, err)
	}
	return &outcome, nil
}

// SaveYear stores a finished year's outcome, replacing any earlier attempt.
func (s *Store) SaveYear(outcome types.YearOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshaling year %d: %w", outcome.Year, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO year_outcomes (year, payload, completed_at) VALUES (?, ?, ?)
		 ON CONFLICT(year) DO UPDATE SET payload=excluded.payload, completed_at=excluded.completed_at`,
		outcome.Year, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting year %d: %w", outcome.Year, err)
	}
	return nil
}
