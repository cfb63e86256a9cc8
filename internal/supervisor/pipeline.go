// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cognito-analytics/cognito/internal/pipeline"
)

const drainTimeout = 30 * time.Second

// ConsumerService runs the pipeline consumer under supervision. The appender
// flush loop is started alongside the consumer and drained when the service
// stops, so buffered events survive a graceful shutdown.
type ConsumerService struct {
	consumer *pipeline.Consumer
	appender *pipeline.Appender
}

func NewConsumerService(consumer *pipeline.Consumer, appender *pipeline.Appender) (*ConsumerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer required")
	}
	if appender == nil {
		return nil, fmt.Errorf("appender required")
	}
	return &ConsumerService{consumer: consumer, appender: appender}, nil
}

// Serve implements suture.Service. Context cancellation is a normal stop,
// not a restartable failure.
func (s *ConsumerService) Serve(ctx context.Context) error {
	if err := s.appender.Start(ctx); err != nil {
		return fmt.Errorf("failed to start appender: %w", err)
	}

	err := s.consumer.Run(ctx)

	// Drain whatever the consumer handed to the appender before it stopped.
	flushCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if flushErr := s.appender.Flush(flushCtx); flushErr != nil && err == nil {
		err = flushErr
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *ConsumerService) String() string {
	return "pipeline-consumer"
}
