// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"testing"
	"time"

	"github.com/cognito-analytics/cognito/internal/config"
	"github.com/cognito-analytics/cognito/internal/models"
)

// testDBSemaphore serializes test database lifecycles. Concurrent DuckDB
// CGO connections can hang under CI resource pressure, so only one test
// holds an open in-memory database at a time. Released via t.Cleanup so the
// slot is held for the whole test, not just creation.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
		Threads:   2,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return db
}

func testSession(id string, postID int64) *models.Session {
	return &models.Session{
		SessionID:   id,
		PostID:      postID,
		PageURL:     "https://example.com/post",
		StartTime:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UserAgent:   "test-agent",
		IsAnonymous: true,
	}
}

func TestNewDatabase(t *testing.T) {
	db := setupTestDB(t)

	count, err := db.EventCount(context.Background())
	if err != nil {
		t.Fatalf("EventCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty event store, got %d events", count)
	}
}

func TestUpsertSessionInsertsOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := testSession("aaaaaaaa-bbbb-4ccc-9ddd-eeeeeeeeeeee", 42)

	created, err := db.UpsertSession(ctx, s)
	if err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if !created {
		t.Error("Expected first upsert to create the session")
	}

	// Second flush of the same session must not mutate the header.
	later := *s
	later.PageURL = "https://example.com/other"
	created, err = db.UpsertSession(ctx, &later)
	if err != nil {
		t.Fatalf("UpsertSession (repeat) failed: %v", err)
	}
	if created {
		t.Error("Expected repeated upsert to be a no-op")
	}

	got, err := db.GetSession(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.PageURL != "https://example.com/post" {
		t.Errorf("Expected original page URL to survive, got %q", got.PageURL)
	}
	if got.PostID != 42 {
		t.Errorf("Expected post_id 42, got %d", got.PostID)
	}
	if got.EndTime != nil {
		t.Error("Expected open session to have no end_time")
	}
}

func TestGetSessionNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetSession(context.Background(), "missing-session")
	if err != ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestCloseSessionFirstCloseWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := testSession("aaaaaaaa-bbbb-4ccc-9ddd-eeeeeeeeeeee", 7)
	if _, err := db.UpsertSession(ctx, s); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	first := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	if err := db.CloseSession(ctx, s.SessionID, first); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	if err := db.CloseSession(ctx, s.SessionID, first.Add(time.Hour)); err != nil {
		t.Fatalf("CloseSession (repeat) failed: %v", err)
	}

	got, err := db.GetSession(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.EndTime == nil {
		t.Fatal("Expected end_time to be set")
	}
	if !got.EndTime.Equal(first) {
		t.Errorf("Expected first close to win: got %v, want %v", got.EndTime, first)
	}
}

func TestSessionCount(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	sessions := []*models.Session{
		testSession("aaaaaaaa-0000-4000-9000-000000000001", 1),
		testSession("aaaaaaaa-0000-4000-9000-000000000002", 1),
		testSession("aaaaaaaa-0000-4000-9000-000000000003", 2),
	}
	for _, s := range sessions {
		if _, err := db.UpsertSession(ctx, s); err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
	}

	total, err := db.SessionCount(ctx, nil)
	if err != nil {
		t.Fatalf("SessionCount failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected 3 sessions total, got %d", total)
	}

	postID := int64(1)
	scoped, err := db.SessionCount(ctx, &postID)
	if err != nil {
		t.Fatalf("SessionCount (scoped) failed: %v", err)
	}
	if scoped != 2 {
		t.Errorf("Expected 2 sessions for post 1, got %d", scoped)
	}
}
