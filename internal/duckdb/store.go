// Package duckdb persists ranked annotation results in DuckDB so they can be
// queried and filtered by gene after a run.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection holding annotation runs.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path, "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id BIGINT PRIMARY KEY,
		started TIMESTAMP,
		input VARCHAR,
		input_size BIGINT,
		input_mtime TIMESTAMP,
		regulatory VARCHAR,
		score VARCHAR,
		assembly VARCHAR,
		rank_order VARCHAR,
		row_count BIGINT
	)`); err != nil {
		return err
	}

	// seq is the rank of the row in the written table.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ranked_results (
		run_id BIGINT,
		seq BIGINT,
		chrom VARCHAR,
		pos BIGINT,
		end_pos BIGINT,
		score VARCHAR,
		score_num DOUBLE,
		has_score BOOLEAN,
		id VARCHAR,
		ref VARCHAR,
		alt VARCHAR,
		vartype VARCHAR,
		vartrans VARCHAR,
		ucsc_link VARCHAR,
		el_id VARCHAR,
		genes VARCHAR,
		PRIMARY KEY (run_id, seq)
	)`)
	return err
}
