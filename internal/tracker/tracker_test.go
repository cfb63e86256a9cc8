// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package tracker

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cognito-analytics/cognito/internal/config"
	"github.com/cognito-analytics/cognito/internal/models"
)

type mockSender struct {
	mu       sync.Mutex
	requests []*models.TrackRequest
	err      error
}

func (m *mockSender) Send(_ context.Context, req *models.TrackRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockSender) sent() []*models.TrackRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.TrackRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(postID int64, sender Sender) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	t := New(nil, postID, "https://example.com/post", sender, WithClock(clock.Now))
	return t, clock
}

var sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestSessionIDLayout(t *testing.T) {
	tr, _ := newTestTracker(1, &mockSender{})

	id := tr.SessionID()
	if len(id) != 36 {
		t.Fatalf("Expected 36-char token, got %d: %q", len(id), id)
	}
	if !sessionIDPattern.MatchString(id) {
		t.Errorf("Token %q does not match the version-4 layout", id)
	}
}

func TestSessionIDStablePerTracker(t *testing.T) {
	tr, _ := newTestTracker(1, &mockSender{})

	first := tr.SessionID()
	for i := 0; i < 10; i++ {
		if got := tr.SessionID(); got != first {
			t.Fatalf("Expected stable token, got %q then %q", first, got)
		}
	}

	other, _ := newTestTracker(1, &mockSender{})
	if other.SessionID() == first {
		t.Error("Expected distinct trackers to generate distinct tokens")
	}
}

func TestFlushDeliversBufferedEventsOnce(t *testing.T) {
	sender := &mockSender{}
	tr, _ := newTestTracker(42, sender)
	ctx := context.Background()

	tr.RecordScroll(500, 500, 2000) // (500+500)/2000 = 50%
	tr.RecordClick(Target{Tag: "A", Href: "https://example.com"})
	tr.Flush(ctx)

	reqs := sender.sent()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 batch, got %d", len(reqs))
	}
	req := reqs[0]
	if req.PostID != 42 || req.PageURL != "https://example.com/post" {
		t.Errorf("Unexpected batch envelope: %+v", req)
	}
	if req.SessionID != tr.SessionID() {
		t.Error("Expected batch to carry the tracker's session token")
	}
	if len(req.Events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(req.Events))
	}
	if req.Events[0].Type != models.EventScroll || req.Events[1].Type != models.EventClick {
		t.Errorf("Unexpected event types: %v, %v", req.Events[0].Type, req.Events[1].Type)
	}
	if req.Closing {
		t.Error("Periodic flush must not be marked closing")
	}

	// The buffer was swapped out: a captured event flushes exactly once.
	tr.RecordFormSubmit("/submit", "f1", "")
	tr.Flush(ctx)
	reqs = sender.sent()
	if len(reqs) != 2 || len(reqs[1].Events) != 1 {
		t.Fatalf("Expected second batch with only the new event, got %+v", reqs)
	}
	if reqs[1].Events[0].Type != models.EventFormSubmit {
		t.Errorf("Expected form_submit, got %v", reqs[1].Events[0].Type)
	}
}

func TestScrollPercentAndRunningMax(t *testing.T) {
	sender := &mockSender{}
	tr, _ := newTestTracker(1, sender)

	tr.RecordScroll(1500, 500, 2000) // 100%
	tr.RecordScroll(500, 500, 2000)  // 50%, max stays 100
	tr.Flush(context.Background())

	req := sender.sent()[0]
	if len(req.Events) != 2 {
		t.Fatalf("Expected 2 scroll events, got %d", len(req.Events))
	}
	d := models.DecodeEventData(models.EventScroll, req.Events[1].Data)
	if d.Scroll == nil {
		t.Fatal("Expected scroll payload to decode")
	}
	if d.Scroll.Percent != 50 || d.Scroll.MaxScroll != 100 {
		t.Errorf("Expected percent 50 with max 100, got %+v", d.Scroll)
	}
}

func TestEmptyFlushSynthesizesHeartbeat(t *testing.T) {
	sender := &mockSender{}
	tr, clock := newTestTracker(1, sender)
	ctx := context.Background()

	tr.RecordMouseMove()
	tr.RecordMouseMove()
	clock.Advance(30 * time.Second)
	tr.Flush(ctx)

	req := sender.sent()[0]
	if len(req.Events) != 1 || req.Events[0].Type != models.EventHeartbeat {
		t.Fatalf("Expected single heartbeat, got %+v", req.Events)
	}
	d := models.DecodeEventData(models.EventHeartbeat, req.Events[0].Data)
	if d.Heartbeat == nil || d.Heartbeat.TimeOnPage == nil {
		t.Fatal("Expected heartbeat payload with timeOnPage")
	}
	if *d.Heartbeat.TimeOnPage != 30 {
		t.Errorf("Expected 30s on page, got %v", *d.Heartbeat.TimeOnPage)
	}
	if d.Heartbeat.MouseMoves != 2 {
		t.Errorf("Expected 2 mouse moves, got %d", d.Heartbeat.MouseMoves)
	}
	// Idle: the pointer last moved 30s ago, past the 10s threshold.
	if !d.Heartbeat.Idle {
		t.Error("Expected idle heartbeat")
	}

	// The movement counter resets each flush.
	clock.Advance(10 * time.Second)
	tr.Flush(ctx)
	d = models.DecodeEventData(models.EventHeartbeat, sender.sent()[1].Events[0].Data)
	if d.Heartbeat.MouseMoves != 0 {
		t.Errorf("Expected counter reset, got %d", d.Heartbeat.MouseMoves)
	}
}

func TestHeartbeatNotIdleAfterRecentActivity(t *testing.T) {
	sender := &mockSender{}
	tr, clock := newTestTracker(1, sender)

	clock.Advance(time.Minute)
	tr.RecordMouseMove()
	clock.Advance(5 * time.Second)
	tr.Flush(context.Background())

	d := models.DecodeEventData(models.EventHeartbeat, sender.sent()[0].Events[0].Data)
	if d.Heartbeat.Idle {
		t.Error("Expected active heartbeat 5s after movement")
	}
}

func TestSendFailureDropsBatch(t *testing.T) {
	sender := &mockSender{err: errors.New("connection refused")}
	tr, _ := newTestTracker(1, sender)
	ctx := context.Background()

	tr.RecordClick(Target{Tag: "A"})
	tr.Flush(ctx)

	stats := tr.Stats()
	if stats.FailedSends != 1 || stats.EventsFailed != 1 {
		t.Errorf("Expected failure counted, got %+v", stats)
	}

	// No retry: the next flush carries only new events.
	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	tr.RecordClick(Target{Tag: "BUTTON"})
	tr.Flush(ctx)

	reqs := sender.sent()
	if len(reqs) != 1 || len(reqs[0].Events) != 1 {
		t.Fatalf("Expected one fresh single-event batch, got %+v", reqs)
	}
	d := models.DecodeEventData(models.EventClick, reqs[0].Events[0].Data)
	if d.Click == nil || d.Click.Tag != "BUTTON" {
		t.Error("Expected only the newly captured click")
	}
	stats = tr.Stats()
	if stats.EventsSent != 1 || stats.Batches != 1 {
		t.Errorf("Expected 1 sent event, got %+v", stats)
	}
}

func TestCloseFlushesWithClosingFlag(t *testing.T) {
	sender := &mockSender{}
	tr, _ := newTestTracker(1, sender)
	ctx := context.Background()

	tr.RecordClick(Target{Tag: "A"})
	tr.Close(ctx)
	tr.Close(ctx) // second close is a no-op

	reqs := sender.sent()
	if len(reqs) != 1 {
		t.Fatalf("Expected exactly one closing batch, got %d", len(reqs))
	}
	if !reqs[0].Closing {
		t.Error("Expected final batch to be marked closing")
	}

	// Captures after close are discarded.
	tr.RecordClick(Target{Tag: "B"})
	if tr.BufferedEvents() != 0 {
		t.Error("Expected closed tracker to discard captures")
	}
}

func TestInertWithoutPost(t *testing.T) {
	sender := &mockSender{}
	tr, _ := newTestTracker(0, sender)
	ctx := context.Background()

	tr.RecordScroll(0, 500, 2000)
	tr.RecordClick(Target{Tag: "A"})
	tr.RecordMouseMove()
	tr.Flush(ctx)
	tr.Close(ctx)

	if len(sender.sent()) != 0 {
		t.Error("Expected inert tracker to never transmit")
	}
}

func TestPasswordFieldsSuppressed(t *testing.T) {
	sender := &mockSender{}
	tr, _ := newTestTracker(1, sender)

	tr.RecordInputChange(Field{Tag: "INPUT", Name: "pw", Type: "password", Value: "hunter2"})
	tr.RecordInputChange(Field{Tag: "INPUT", Name: "email", Type: "email", Value: "a@b.c"})
	tr.Flush(context.Background())

	req := sender.sent()[0]
	if len(req.Events) != 1 {
		t.Fatalf("Expected password change suppressed, got %d events", len(req.Events))
	}
	d := models.DecodeEventData(models.EventInputChange, req.Events[0].Data)
	if d.Input == nil || d.Input.Name != "email" {
		t.Errorf("Expected only the email change, got %+v", d.Input)
	}
	if strings.Contains(string(req.Events[0].Data), "hunter2") {
		t.Error("Password value leaked into the batch")
	}
}

func TestClickTextTruncated(t *testing.T) {
	sender := &mockSender{}
	tr, _ := newTestTracker(1, sender)

	tr.RecordClick(Target{Tag: "P", Text: strings.Repeat("a", 500)})
	tr.Flush(context.Background())

	d := models.DecodeEventData(models.EventClick, sender.sent()[0].Events[0].Data)
	if len(d.Click.Text) != 100 {
		t.Errorf("Expected text truncated to 100 chars, got %d", len(d.Click.Text))
	}
}

func TestClickTextTruncationKeepsValidUTF8(t *testing.T) {
	sender := &mockSender{}
	tr, _ := newTestTracker(1, sender)

	// 150 multibyte characters; a byte-based cut at 100 would land inside a
	// rune and ship invalid UTF-8.
	tr.RecordClick(Target{Tag: "P", Text: strings.Repeat("é", 150)})
	tr.Flush(context.Background())

	d := models.DecodeEventData(models.EventClick, sender.sent()[0].Events[0].Data)
	if got := []rune(d.Click.Text); len(got) != 100 {
		t.Errorf("Expected 100 characters, got %d", len(got))
	}
	if !utf8.ValidString(d.Click.Text) {
		t.Error("Truncated text is not valid UTF-8")
	}
}

func TestPeriodicFlushLoop(t *testing.T) {
	sender := &mockSender{}
	tr := New(&config.TrackerConfig{FlushInterval: 20 * time.Millisecond}, 1,
		"https://example.com/post", sender)
	ctx := context.Background()

	tr.Start(ctx)
	defer tr.Close(ctx)

	deadline := time.After(2 * time.Second)
	for len(sender.sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for a periodic flush")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
