// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/cognito-analytics/cognito/internal/metrics"
	"github.com/cognito-analytics/cognito/internal/models"
)

// EventFilter narrows an event query. Zero-value fields are ignored; set
// fields combine conjunctively.
type EventFilter struct {
	EventType models.EventType
	PostID    int64
	From      time.Time
	To        time.Time
	Limit     int
}

// InsertEvents persists one batch of events for a session in a single
// transaction. Each event is stamped with its client capture time when the
// payload carries one, otherwise with the batch arrival time. The batch is
// all-or-nothing: a failure on any row rolls back the whole flush.
func (db *DB) InsertEvents(ctx context.Context, sessionID string, arrival time.Time, inputs []models.EventInput) error {
	start := time.Now()
	err := db.insertEvents(ctx, sessionID, arrival, inputs)
	metrics.RecordDBQuery("insert_events", time.Since(start), err)
	if err != nil {
		return err
	}
	metrics.IngestEventsTotal.Add(float64(len(inputs)))
	return nil
}

func (db *DB) insertEvents(ctx context.Context, sessionID string, arrival time.Time, inputs []models.EventInput) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (session_id, event_type, timestamp, data)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, in := range inputs {
		data := in.Data
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}

		ts := arrival.UTC()
		decoded := models.DecodeEventData(in.Type, data)
		if captured, ok := decoded.CaptureTime(); ok {
			ts = captured
		}

		if _, err := stmt.ExecContext(ctx, sessionID, string(in.Type), ts, string(data)); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event batch: %w", err)
	}
	return nil
}

// QueryEvents returns events matching the filter, newest first by insertion
// order. Each event carries the post id of its owning session; events whose
// session header has not arrived yet report post id zero.
func (db *DB) QueryEvents(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	query := `
		SELECT e.event_id, e.session_id, e.event_type, e.timestamp, e.data,
		       COALESCE(s.post_id, 0)
		FROM events e
		LEFT JOIN sessions s ON e.session_id = s.session_id
		WHERE 1=1`
	args := []interface{}{}

	if filter.EventType != "" {
		query += ` AND e.event_type = ?`
		args = append(args, string(filter.EventType))
	}
	if filter.PostID > 0 {
		query += ` AND s.post_id = ?`
		args = append(args, filter.PostID)
	}
	if !filter.From.IsZero() {
		query += ` AND e.timestamp >= ?`
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query += ` AND e.timestamp <= ?`
		args = append(args, filter.To.UTC())
	}

	query += ` ORDER BY e.event_id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("query_events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// HeatmapEvents returns the pointer-shaped events (mousemove, click, scroll)
// for one post in insertion order, oldest first, so heatmap accumulation
// replays the interactions as they happened.
func (db *DB) HeatmapEvents(ctx context.Context, postID int64) ([]models.Event, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT e.event_id, e.session_id, e.event_type, e.timestamp, e.data,
		       COALESCE(s.post_id, 0)
		FROM events e
		LEFT JOIN sessions s ON e.session_id = s.session_id
		WHERE s.post_id = ? AND e.event_type IN ('mousemove', 'click', 'scroll')
		ORDER BY e.event_id ASC`,
		postID,
	)
	metrics.RecordDBQuery("heatmap_events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query heatmap events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventCount returns the total number of stored events.
func (db *DB) EventCount(ctx context.Context) (int, error) {
	start := time.Now()
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	metrics.RecordDBQuery("event_count", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	events := []models.Event{}
	for rows.Next() {
		var (
			e    models.Event
			etyp string
			data string
		)
		if err := rows.Scan(&e.EventID, &e.SessionID, &etyp, &e.Timestamp, &data, &e.PostID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.EventType = models.EventType(etyp)
		e.Timestamp = e.Timestamp.UTC()
		e.Data = models.DecodeEventData(e.EventType, json.RawMessage(data))
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
