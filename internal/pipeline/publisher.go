// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/cognito-analytics/cognito/internal/metrics"
)

// Publisher pushes accepted batches onto the pipeline topic.
type Publisher struct {
	pub   message.Publisher
	topic string
}

// NewPublisher wraps a Watermill publisher for the given topic. An empty
// topic falls back to DefaultTopic.
func NewPublisher(pub message.Publisher, topic string) (*Publisher, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{pub: pub, topic: topic}, nil
}

// Publish sends one envelope. The send is in-process and synchronous with
// respect to topic delivery, so a nil return means the subscriber side has
// the message buffered.
func (p *Publisher) Publish(env *EventEnvelope) error {
	msg, err := env.Message()
	if err != nil {
		return err
	}
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}
	metrics.PipelinePublishedTotal.Inc()
	return nil
}

// Close shuts down the underlying publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}
