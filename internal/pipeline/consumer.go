// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/cognito-analytics/cognito/internal/logging"
	"github.com/cognito-analytics/cognito/internal/metrics"
)

// Consumer drains the pipeline topic into the appender.
type Consumer struct {
	sub      message.Subscriber
	topic    string
	appender *Appender
}

// NewConsumer builds a consumer over an existing subscription source and
// appender.
func NewConsumer(sub message.Subscriber, topic string, appender *Appender) (*Consumer, error) {
	if sub == nil {
		return nil, fmt.Errorf("subscriber required")
	}
	if appender == nil {
		return nil, fmt.Errorf("appender required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Consumer{sub: sub, topic: topic, appender: appender}, nil
}

// Run consumes messages until ctx is cancelled or the subscription closes.
// Undecodable messages are acked and dropped: redelivering a poison payload
// can never succeed. Appender failures nack so delivery can retry.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.topic, err)
	}

	logging.Info().Str("topic", c.topic).Msg("Pipeline consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(msg)
		}
	}
}

func (c *Consumer) handle(msg *message.Message) {
	env, err := DecodeEnvelope(msg)
	if err != nil {
		metrics.PipelineConsumedTotal.WithLabelValues("invalid").Inc()
		logging.Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable pipeline message")
		msg.Ack()
		return
	}

	if err := c.appender.Add(env); err != nil {
		metrics.PipelineConsumedTotal.WithLabelValues("error").Inc()
		logging.Err(err).
			Str("message_id", msg.UUID).
			Str("session_id", env.SessionID).
			Msg("Appender rejected envelope")
		msg.Nack()
		return
	}

	metrics.PipelineConsumedTotal.WithLabelValues("ok").Inc()
	msg.Ack()
}
