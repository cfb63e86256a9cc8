// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tracker is the embedded capture SDK: it observes a fixed set of
// interaction categories for one page visit, buffers normalized event
// records, and flushes them to the ingestion endpoint on a periodic cadence
// and once more when the page closes.
//
// The host environment dispatches interactions into the Record* methods
// explicitly; the tracker never reaches into the host. A tracker built for
// post id 0 is inert: every capture and flush is a no-op.
package tracker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cognito-analytics/cognito/internal/config"
	"github.com/cognito-analytics/cognito/internal/logging"
	"github.com/cognito-analytics/cognito/internal/models"
)

const (
	defaultFlushInterval = 10 * time.Second
	defaultIdleThreshold = 10 * time.Second

	// clickTextLimit caps captured element text so a click on a long
	// article body does not ship the whole paragraph.
	clickTextLimit = 100
)

// Stats counts dispatch outcomes since the tracker started.
type Stats struct {
	EventsSent   int64
	EventsFailed int64
	Batches      int64
	FailedSends  int64
}

// Tracker captures interactions for one (session, post) page visit.
// All methods are safe for concurrent use; the buffer swap in flush is the
// only point where captured events leave the tracker.
type Tracker struct {
	postID  int64
	pageURL string
	sender  Sender

	flushInterval time.Duration
	idleThreshold time.Duration
	now           func() time.Time

	mu           sync.Mutex
	sessionID    string
	buffer       []models.EventInput
	startTime    time.Time
	lastActivity time.Time
	mouseMoves   int64
	maxScroll    float64
	closed       bool
	stats        Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// Option adjusts tracker construction, mainly for tests.
type Option func(*Tracker)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New builds a tracker for one page visit. A zero postID produces an inert
// tracker, matching pages that have no trackable content item.
func New(cfg *config.TrackerConfig, postID int64, pageURL string, sender Sender, opts ...Option) *Tracker {
	t := &Tracker{
		postID:        postID,
		pageURL:       pageURL,
		sender:        sender,
		flushInterval: defaultFlushInterval,
		idleThreshold: defaultIdleThreshold,
		now:           time.Now,
		done:          make(chan struct{}),
	}
	if cfg != nil {
		if cfg.FlushInterval > 0 {
			t.flushInterval = cfg.FlushInterval
		}
		if cfg.IdleThreshold > 0 {
			t.idleThreshold = cfg.IdleThreshold
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	t.startTime = t.now()
	t.lastActivity = t.startTime
	return t
}

func (t *Tracker) enabled() bool {
	return t.postID > 0
}

func (t *Tracker) append(typ models.EventType, payload interface{}) {
	if !t.enabled() {
		return
	}
	data := models.NewEventData(payload)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.buffer = append(t.buffer, models.EventInput{Type: typ, Data: data.Raw})
}

func (t *Tracker) timestamp() int64 {
	return t.now().UnixMilli()
}

// RecordScroll captures the reader's scroll position. The percentage is the
// visible bottom edge against the full document height, rounded; the running
// maximum persists across the visit.
func (t *Tracker) RecordScroll(scrollTop, viewportHeight, docHeight float64) {
	if !t.enabled() || docHeight <= 0 {
		return
	}
	percent := math.Round((scrollTop + viewportHeight) / docHeight * 100)

	t.mu.Lock()
	if percent > t.maxScroll {
		t.maxScroll = percent
	}
	max := t.maxScroll
	t.mu.Unlock()

	t.append(models.EventScroll, &models.ScrollData{
		Percent:   percent,
		MaxScroll: max,
		Timestamp: t.timestamp(),
	})
}

// Target describes the element a click landed on.
type Target struct {
	Tag     string
	ID      string
	Classes string
	Name    string
	Type    string
	Text    string
	Value   string
	Href    string
}

// RecordClick captures a click. Element text is truncated to keep payloads
// bounded.
func (t *Tracker) RecordClick(target Target) {
	text := target.Text
	if runes := []rune(text); len(runes) > clickTextLimit {
		// Character-based truncation; a byte slice could split a rune.
		text = string(runes[:clickTextLimit])
	}
	t.markActivity()
	t.append(models.EventClick, &models.ClickData{
		Tag:       target.Tag,
		ID:        target.ID,
		Classes:   target.Classes,
		Name:      target.Name,
		Type:      target.Type,
		Text:      text,
		Value:     target.Value,
		Href:      target.Href,
		Timestamp: t.timestamp(),
	})
}

// RecordMouseMove advances the movement counter and activity clock without
// buffering a record. Raw movement is far too chatty to ship per-sample;
// the aggregate count rides the next heartbeat instead.
func (t *Tracker) RecordMouseMove() {
	if !t.enabled() {
		return
	}
	t.mu.Lock()
	t.mouseMoves++
	t.lastActivity = t.now()
	t.mu.Unlock()
}

// RecordMouseOver captures the pointer entering an element.
func (t *Tracker) RecordMouseOver(tag, id, classes string) {
	t.append(models.EventMouseOver, &models.HoverData{
		Tag: tag, ID: id, Classes: classes, Timestamp: t.timestamp(),
	})
}

// RecordMouseOut captures the pointer leaving an element.
func (t *Tracker) RecordMouseOut(tag, id, classes string) {
	t.append(models.EventMouseOut, &models.HoverData{
		Tag: tag, ID: id, Classes: classes, Timestamp: t.timestamp(),
	})
}

// RecordVideo captures a media playback transition. Position is only
// meaningful for seeks and may be nil otherwise.
func (t *Tracker) RecordVideo(eventType models.EventType, src string, position *float64) {
	switch eventType {
	case models.EventVideoPlay, models.EventVideoPause, models.EventVideoEnded, models.EventVideoSeeked:
	default:
		return
	}
	t.append(eventType, &models.VideoData{
		Src: src, Position: position, Timestamp: t.timestamp(),
	})
}

// RecordFormSubmit captures a form submission.
func (t *Tracker) RecordFormSubmit(action, id, classes string) {
	t.append(models.EventFormSubmit, &models.FormSubmitData{
		Action: action, ID: id, Classes: classes, Timestamp: t.timestamp(),
	})
}

// Field describes a form field for change/focus/blur capture.
type Field struct {
	Tag     string
	ID      string
	Classes string
	Name    string
	Type    string
	Value   string
	Checked *bool
}

// RecordInputChange captures a field value change. Password fields are
// never captured.
func (t *Tracker) RecordInputChange(f Field) {
	if f.Type == "password" {
		return
	}
	t.append(models.EventInputChange, &models.InputData{
		Tag:       f.Tag,
		ID:        f.ID,
		Classes:   f.Classes,
		Name:      f.Name,
		Type:      f.Type,
		Value:     f.Value,
		Checked:   f.Checked,
		Timestamp: t.timestamp(),
	})
}

// RecordInputFocus captures a field gaining focus.
func (t *Tracker) RecordInputFocus(tag, id, name string) {
	t.append(models.EventInputFocus, &models.InputData{
		Tag: tag, ID: id, Name: name, Timestamp: t.timestamp(),
	})
}

// RecordInputBlur captures a field losing focus.
func (t *Tracker) RecordInputBlur(tag, id, name string) {
	t.append(models.EventInputBlur, &models.InputData{
		Tag: tag, ID: id, Name: name, Timestamp: t.timestamp(),
	})
}

func (t *Tracker) markActivity() {
	if !t.enabled() {
		return
	}
	t.mu.Lock()
	t.lastActivity = t.now()
	t.mu.Unlock()
}

// Stats returns dispatch counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// BufferedEvents reports how many captured records await the next flush.
func (t *Tracker) BufferedEvents() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// Start launches the periodic flush loop. The loop runs until ctx is
// cancelled or Close is called; cancellation does not flush, mirroring a
// page being torn down before the unload handler ran.
func (t *Tracker) Start(ctx context.Context) {
	if !t.enabled() {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Flush(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Flush transmits everything captured since the previous flush. An empty
// buffer still produces a batch: a single synthesized heartbeat with the
// time on page, the idle flag, and the movement count since the previous
// flush. Transmission failures are logged and the batch dropped; the next
// flush carries only newly captured events.
func (t *Tracker) Flush(ctx context.Context) {
	t.flush(ctx, false)
}

func (t *Tracker) flush(ctx context.Context, closing bool) {
	if !t.enabled() {
		return
	}

	t.mu.Lock()
	if t.closed && !closing {
		t.mu.Unlock()
		return
	}
	if t.sessionID == "" {
		t.sessionID = generateSessionID()
	}
	sessionID := t.sessionID

	batch := t.buffer
	t.buffer = nil

	nowT := t.now()
	if len(batch) == 0 {
		hb := t.heartbeatLocked(nowT)
		batch = []models.EventInput{{Type: models.EventHeartbeat, Data: models.NewEventData(hb).Raw}}
	}
	t.mouseMoves = 0
	t.mu.Unlock()

	req := &models.TrackRequest{
		SessionID: sessionID,
		PostID:    t.postID,
		PageURL:   t.pageURL,
		Events:    batch,
		Closing:   closing,
	}

	err := t.sender.Send(ctx, req)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.stats.FailedSends++
		t.stats.EventsFailed += int64(len(batch))
		logging.Err(err).
			Str("session_id", sessionID).
			Int("events", len(batch)).
			Msg("Engagement batch dropped after send failure")
		return
	}
	t.stats.Batches++
	t.stats.EventsSent += int64(len(batch))
}

// heartbeatLocked synthesizes the idle-page heartbeat. Caller holds t.mu.
func (t *Tracker) heartbeatLocked(now time.Time) *models.HeartbeatData {
	timeOnPage := math.Round(now.Sub(t.startTime).Seconds())
	return &models.HeartbeatData{
		TimeOnPage: &timeOnPage,
		Idle:       now.Sub(t.lastActivity) > t.idleThreshold,
		MouseMoves: t.mouseMoves,
		Timestamp:  now.UnixMilli(),
	}
}

// Close stops the flush loop and transmits one final batch marked closing,
// so the server can stamp the session's end time. Safe to call more than
// once; only the first call flushes.
func (t *Tracker) Close(ctx context.Context) {
	if !t.enabled() {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-t.done
	}
	t.flush(ctx, true)
}
