// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models defines the core data types shared across the Cognito
// pipeline: session headers, interaction events, the ingestion request
// contract, and the derived analytics outputs.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// EventType identifies the category of a captured interaction.
// The enumeration is open: the store accepts unknown types so that older
// servers tolerate newer trackers.
type EventType string

// Known event types emitted by the tracker.
const (
	EventScroll      EventType = "scroll"
	EventClick       EventType = "click"
	EventMouseMove   EventType = "mousemove"
	EventMouseOver   EventType = "mouseover"
	EventMouseOut    EventType = "mouseout"
	EventVideoPlay   EventType = "video_play"
	EventVideoPause  EventType = "video_pause"
	EventVideoEnded  EventType = "video_ended"
	EventVideoSeeked EventType = "video_seeked"
	EventFormSubmit  EventType = "form_submit"
	EventInputChange EventType = "input_change"
	EventInputFocus  EventType = "input_focus"
	EventInputBlur   EventType = "input_blur"
	EventHeartbeat   EventType = "heartbeat"
)

// PointerTypes are the event types that feed heatmap rendering.
var PointerTypes = []EventType{EventMouseMove, EventClick, EventScroll}

// Session is one browser-tab visit to one content item, keyed by a
// client-generated token. Created on the session's first flush and never
// mutated afterwards, except for EndTime which is set once when the tracker
// reports the page closing.
type Session struct {
	SessionID   string     `json:"session_id"`
	UserID      *int64     `json:"user_id"`
	PostID      int64      `json:"post_id"`
	PageURL     string     `json:"page_url"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	UserAgent   string     `json:"user_agent"`
	IsAnonymous bool       `json:"is_anonymous"`
}

// Event is one captured interaction or heartbeat tick. EventID is assigned
// monotonically by the store; PostID is joined in from the owning session on
// reads and is not stored on the event row itself.
type Event struct {
	EventID   int64     `json:"event_id"`
	SessionID string    `json:"session_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
	PostID    int64     `json:"post_id"`
}

// EventInput is one {type, data} pair inside an ingestion batch. Data stays
// raw until the server decodes it by type tag.
type EventInput struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TrackRequest is the ingestion contract: one batch of events captured for
// one session since the previous flush.
//
// Closing marks the final flush of a page's lifetime; the server uses it to
// stamp the session's end_time.
type TrackRequest struct {
	SessionID string       `json:"session_id" validate:"required,len=36"`
	PostID    int64        `json:"post_id" validate:"required,gt=0"`
	PageURL   string       `json:"page_url"`
	Events    []EventInput `json:"events" validate:"required,min=1"`
	Closing   bool         `json:"closing,omitempty"`
}

// TrackResponse acknowledges an accepted batch.
type TrackResponse struct {
	Success bool `json:"success"`
}
