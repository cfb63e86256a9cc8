// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline moves accepted ingestion batches from the track handler
// to the event store asynchronously. Batches travel as envelopes over an
// in-process Watermill Pub/Sub topic and land in a batching appender that
// writes them to DuckDB. The pipeline is optional: when disabled the track
// handler writes to the store directly.
package pipeline

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/cognito-analytics/cognito/internal/models"
)

// DefaultTopic is the Pub/Sub topic batches travel on.
const DefaultTopic = "engagement.events"

// EventEnvelope carries one accepted batch through the pipeline. The session
// header has already been upserted synchronously by the handler; the
// envelope only moves the event rows.
type EventEnvelope struct {
	SessionID string              `json:"session_id"`
	Arrival   time.Time           `json:"arrival"`
	Events    []models.EventInput `json:"events"`
}

// Message renders the envelope as a Watermill message.
func (e *EventEnvelope) Message() (*message.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("session_id", e.SessionID)
	return msg, nil
}

// DecodeEnvelope parses a pipeline message back into an envelope.
func DecodeEnvelope(msg *message.Message) (*EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.SessionID == "" {
		return nil, fmt.Errorf("envelope missing session id")
	}
	return &env, nil
}
