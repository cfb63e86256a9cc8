// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package database provides the DuckDB-backed event store: durable session
// headers keyed by session id and append-only event rows keyed by a
// store-assigned monotonic event id.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/cognito-analytics/cognito/internal/config"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the database and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	// Ensure the parent directory exists for file-backed databases.
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	// Disable auto-install/auto-load of extensions to prevent hangs in
	// restricted network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn: conn,
		cfg:  cfg,
	}

	if err := db.createSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// createSchema creates the sessions and events tables, the event id
// sequence, and the query indexes.
//
// Event payloads are stored as JSON text in a VARCHAR column rather than a
// native JSON column so the schema works without the json extension loaded.
func (db *DB) createSchema() error {
	_, err := db.conn.Exec(`
	CREATE SEQUENCE IF NOT EXISTS seq_event_id START 1;

	CREATE TABLE IF NOT EXISTS sessions (
		session_id   VARCHAR PRIMARY KEY,
		user_id      BIGINT,
		post_id      BIGINT NOT NULL,
		page_url     VARCHAR,
		start_time   TIMESTAMP NOT NULL,
		end_time     TIMESTAMP,
		user_agent   VARCHAR,
		is_anonymous BOOLEAN NOT NULL DEFAULT true
	);

	CREATE TABLE IF NOT EXISTS events (
		event_id   BIGINT PRIMARY KEY DEFAULT nextval('seq_event_id'),
		session_id VARCHAR NOT NULL,
		event_type VARCHAR NOT NULL,
		timestamp  TIMESTAMP NOT NULL,
		data       VARCHAR NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_type    ON events(event_type);
	CREATE INDEX IF NOT EXISTS idx_events_ts      ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_sessions_post  ON sessions(post_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive, for readiness checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
