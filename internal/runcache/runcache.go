// Package runcache records completed pipeline stages in a sqlite database so
// reruns on unchanged inputs can reuse their artifacts. The --redo flag
// invalidates records before the run starts.
package runcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is a stage-result cache backed by a sqlite file.
type Store struct {
	db    *sql.DB
	runID string
}

// Open creates or opens the cache database at path and prepares the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS stage_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			artifact TEXT NOT NULL,
			completed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_stage_fingerprint
			ON stage_results(stage, fingerprint);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing cache schema: %w", err)
	}

	return &Store{db: db, runID: uuid.NewString()}, nil
}

// RunID identifies the current pipeline run in cache records.
func (s *Store) RunID() string { return s.runID }

// Lookup returns the most recent artifact recorded for a stage and input
// fingerprint, if any.
func (s *Store) Lookup(stage, fingerprint string) (artifact string, ok bool, err error) {
	row := s.db.QueryRow(
		`SELECT artifact FROM stage_results
		 WHERE stage = ? AND fingerprint = ?
		 ORDER BY completed_at DESC, id DESC LIMIT 1`,
		stage, fingerprint)
	switch err := row.Scan(&artifact); err {
	case nil:
		return artifact, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("cache lookup for stage %s: %w", stage, err)
	}
}

// Record stores a completed stage result.
func (s *Store) Record(stage, fingerprint, artifact string) error {
	_, err := s.db.Exec(
		`INSERT INTO stage_results (run_id, stage, fingerprint, artifact) VALUES (?, ?, ?, ?)`,
		s.runID, stage, fingerprint, artifact)
	if err != nil {
		return fmt.Errorf("recording stage %s: %w", stage, err)
	}
	return nil
}

// Invalidate removes all records for a stage.
func (s *Store) Invalidate(stage string) error {
	_, err := s.db.Exec(`DELETE FROM stage_results WHERE stage = ?`, stage)
	if err != nil {
		return fmt.Errorf("invalidating stage %s: %w", stage, err)
	}
	return nil
}

// InvalidateAll removes every cached record. Used by the --redo flag.
func (s *Store) InvalidateAll() error {
	if _, err := s.db.Exec(`DELETE FROM stage_results`); err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Fingerprint derives a stable hex digest from the given parts, typically
// the input path, its modification time and the stage configuration.
func Fingerprint(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}
