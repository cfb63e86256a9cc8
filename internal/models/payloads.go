// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// ScrollData reports the reader's scroll position as a page percentage,
// alongside the running maximum for the session.
type ScrollData struct {
	Percent   float64 `json:"percent"`
	MaxScroll float64 `json:"maxScroll"`
	Timestamp int64   `json:"timestamp,omitempty"` // capture time, Unix ms
}

// ClickData describes the clicked element. Coordinates are optional; when
// present they feed the heatmap sample set.
type ClickData struct {
	Tag       string   `json:"tag,omitempty"`
	ID        string   `json:"id,omitempty"`
	Classes   string   `json:"classes,omitempty"`
	Name      string   `json:"name,omitempty"`
	Type      string   `json:"type,omitempty"`
	Text      string   `json:"text,omitempty"` // truncated to 100 chars at capture
	Value     string   `json:"value,omitempty"`
	Href      string   `json:"href,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// PointerData is a raw pointer-position sample (mousemove).
type PointerData struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// HoverData describes the element under the pointer for mouseover/mouseout.
type HoverData struct {
	Tag       string `json:"tag,omitempty"`
	ID        string `json:"id,omitempty"`
	Classes   string `json:"classes,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// VideoData carries the media source for playback events; Position is only
// set for seeks.
type VideoData struct {
	Src       string   `json:"src,omitempty"`
	Position  *float64 `json:"currentTime,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// FormSubmitData identifies the submitted form.
type FormSubmitData struct {
	Action    string `json:"action,omitempty"`
	ID        string `json:"id,omitempty"`
	Classes   string `json:"classes,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// InputData describes a form field for change/focus/blur events. Change
// events for password fields are never captured.
type InputData struct {
	Tag       string `json:"tag,omitempty"`
	ID        string `json:"id,omitempty"`
	Classes   string `json:"classes,omitempty"`
	Name      string `json:"name,omitempty"`
	Type      string `json:"type,omitempty"`
	Value     string `json:"value,omitempty"`
	Checked   *bool  `json:"checked,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// HeartbeatData is synthesized when a flush interval passes with no captured
// interaction, so dwell time stays observable on idle pages.
type HeartbeatData struct {
	TimeOnPage *float64 `json:"timeOnPage,omitempty"` // seconds since page load
	Idle       bool     `json:"idle"`                 // pointer still for >10s
	MouseMoves int64    `json:"mouseMoves"`           // moves since the previous flush
	Timestamp  int64    `json:"timestamp,omitempty"`
}

// EventData is the type-tagged payload of an event. Exactly one case pointer
// is set for a well-formed payload of a known type; Raw always preserves the
// wire JSON so that malformed or unknown payloads survive a round trip and
// degrade per-metric instead of failing ingestion.
type EventData struct {
	Scroll    *ScrollData     `json:"-"`
	Click     *ClickData      `json:"-"`
	Pointer   *PointerData    `json:"-"`
	Hover     *HoverData      `json:"-"`
	Video     *VideoData      `json:"-"`
	Form      *FormSubmitData `json:"-"`
	Input     *InputData      `json:"-"`
	Heartbeat *HeartbeatData  `json:"-"`
	Raw       json.RawMessage `json:"-"`
}

// DecodeEventData parses a raw payload according to the event type tag.
// A payload that fails to parse, or whose type is unknown, is retained raw
// with no case set; the typed accessors then report absence.
func DecodeEventData(eventType EventType, raw json.RawMessage) EventData {
	d := EventData{Raw: raw}
	if len(raw) == 0 {
		return d
	}

	var err error
	switch eventType {
	case EventScroll:
		v := &ScrollData{}
		if err = json.Unmarshal(raw, v); err == nil {
			d.Scroll = v
		}
	case EventClick:
		v := &ClickData{}
		if err = json.Unmarshal(raw, v); err == nil {
			d.Click = v
		}
	case EventMouseMove:
		v := &PointerData{}
		if err = json.Unmarshal(raw, v); err == nil {
			d.Pointer = v
		}
	case EventMouseOver, EventMouseOut:
		v := &HoverData{}
		if err = json.Unmarshal(raw, v); err == nil {
			d.Hover = v
		}
	case EventVideoPlay, EventVideoPause, EventVideoEnded, EventVideoSeeked:
		v := &VideoData{}
		if err = json.Unmarshal(raw, v); err == nil {
			d.Video = v
		}
	case EventFormSubmit:
		v := &FormSubmitData{}
		if err = json.Unmarshal(raw, v); err == nil {
			d.Form = v
		}
	case EventInputChange, EventInputFocus, EventInputBlur:
		v := &InputData{}
		if err = json.Unmarshal(raw, v); err == nil {
			d.Input = v
		}
	case EventHeartbeat:
		v := &HeartbeatData{}
		if err = json.Unmarshal(raw, v); err == nil {
			d.Heartbeat = v
		}
	}
	return d
}

// MarshalJSON emits the original wire payload when available, else the typed
// case. Used when serving events back to the dashboard as structured values.
func (d EventData) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	if v := d.payload(); v != nil {
		return json.Marshal(v)
	}
	return []byte("null"), nil
}

// UnmarshalJSON retains the payload raw; callers decode by type tag via
// DecodeEventData once the owning event's type is known.
func (d *EventData) UnmarshalJSON(raw []byte) error {
	d.Raw = append(d.Raw[:0], raw...)
	return nil
}

// payload returns whichever typed case is set, or nil.
func (d EventData) payload() interface{} {
	switch {
	case d.Scroll != nil:
		return d.Scroll
	case d.Click != nil:
		return d.Click
	case d.Pointer != nil:
		return d.Pointer
	case d.Hover != nil:
		return d.Hover
	case d.Video != nil:
		return d.Video
	case d.Form != nil:
		return d.Form
	case d.Input != nil:
		return d.Input
	case d.Heartbeat != nil:
		return d.Heartbeat
	}
	return nil
}

// ScrollPercent returns the scroll percentage when this is a well-formed
// scroll payload.
func (d EventData) ScrollPercent() (float64, bool) {
	if d.Scroll == nil {
		return 0, false
	}
	return d.Scroll.Percent, true
}

// TimeOnPage returns the reported dwell time in seconds when this is a
// well-formed heartbeat payload carrying the field.
func (d EventData) TimeOnPage() (float64, bool) {
	if d.Heartbeat == nil || d.Heartbeat.TimeOnPage == nil {
		return 0, false
	}
	return *d.Heartbeat.TimeOnPage, true
}

// Coordinates returns the pointer coordinates when the payload carries a
// numeric (x, y) pair.
func (d EventData) Coordinates() (x, y float64, ok bool) {
	switch {
	case d.Pointer != nil:
		return d.Pointer.X, d.Pointer.Y, true
	case d.Click != nil && d.Click.X != nil && d.Click.Y != nil:
		return *d.Click.X, *d.Click.Y, true
	}
	return 0, 0, false
}

// tsProbe extracts just the capture timestamp from any payload shape.
type tsProbe struct {
	Timestamp int64 `json:"timestamp"`
}

// CaptureTime returns the client-supplied capture time carried in the
// payload, for any event type including unknown ones. Reports false when the
// payload is malformed or carries no timestamp.
func (d EventData) CaptureTime() (time.Time, bool) {
	if len(d.Raw) == 0 {
		return time.Time{}, false
	}
	var p tsProbe
	if err := json.Unmarshal(d.Raw, &p); err != nil || p.Timestamp <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(p.Timestamp).UTC(), true
}

// NewEventData wraps a typed payload for a tracker-built event, rendering
// Raw eagerly so the wire form matches what DecodeEventData expects.
func NewEventData(payload interface{}) EventData {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	d := EventData{Raw: raw}
	switch v := payload.(type) {
	case *ScrollData:
		d.Scroll = v
	case *ClickData:
		d.Click = v
	case *PointerData:
		d.Pointer = v
	case *HoverData:
		d.Hover = v
	case *VideoData:
		d.Video = v
	case *FormSubmitData:
		d.Form = v
	case *InputData:
		d.Input = v
	case *HeartbeatData:
		d.Heartbeat = v
	}
	return d
}
