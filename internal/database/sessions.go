// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cognito-analytics/cognito/internal/metrics"
	"github.com/cognito-analytics/cognito/internal/models"
)

// ErrSessionNotFound is returned when a session id has no header row.
var ErrSessionNotFound = errors.New("session not found")

// UpsertSession inserts a session header if none exists for its id.
// Existing headers are never mutated: the first flush of a session wins and
// repeated flushes are no-ops. Returns true when a new header was inserted.
//
// Two concurrent first-flushes of one session race on the conflict clause;
// DuckDB resolves it to a single row.
func (db *DB) UpsertSession(ctx context.Context, s *models.Session) (bool, error) {
	start := time.Now()

	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, post_id, page_url, start_time, end_time, user_agent, is_anonymous)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (session_id) DO NOTHING`,
		s.SessionID, s.UserID, s.PostID, s.PageURL, s.StartTime.UTC(), s.UserAgent, s.IsAnonymous,
	)
	metrics.RecordDBQuery("upsert_session", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to upsert session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected > 0 {
		metrics.SessionsCreatedTotal.Inc()
	}
	return affected > 0, nil
}

// CloseSession stamps the session's end_time once. Later close attempts
// leave the first stamp intact.
func (db *DB) CloseSession(ctx context.Context, sessionID string, endTime time.Time) error {
	start := time.Now()

	_, err := db.conn.ExecContext(ctx, `
		UPDATE sessions SET end_time = ?
		WHERE session_id = ? AND end_time IS NULL`,
		endTime.UTC(), sessionID,
	)
	metrics.RecordDBQuery("close_session", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// GetSession retrieves one session header by id.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	start := time.Now()

	row := db.conn.QueryRowContext(ctx, `
		SELECT session_id, user_id, post_id, page_url, start_time, end_time, user_agent, is_anonymous
		FROM sessions
		WHERE session_id = ?`,
		sessionID,
	)

	var (
		s         models.Session
		userID    sql.NullInt64
		endTime   sql.NullTime
		pageURL   sql.NullString
		userAgent sql.NullString
	)
	err := row.Scan(&s.SessionID, &userID, &s.PostID, &pageURL, &s.StartTime, &endTime, &userAgent, &s.IsAnonymous)
	metrics.RecordDBQuery("get_session", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if userID.Valid {
		s.UserID = &userID.Int64
	}
	if endTime.Valid {
		t := endTime.Time.UTC()
		s.EndTime = &t
	}
	s.PageURL = pageURL.String
	s.UserAgent = userAgent.String
	s.StartTime = s.StartTime.UTC()
	return &s, nil
}

// SessionCount returns the number of session headers, optionally scoped to
// one post.
func (db *DB) SessionCount(ctx context.Context, postID *int64) (int, error) {
	start := time.Now()

	query := `SELECT COUNT(*) FROM sessions`
	args := []interface{}{}
	if postID != nil {
		query += ` WHERE post_id = ?`
		args = append(args, *postID)
	}

	var count int
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count)
	metrics.RecordDBQuery("session_count", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}
