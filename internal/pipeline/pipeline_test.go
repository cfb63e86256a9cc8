// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/cognito-analytics/cognito/internal/models"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := testEnvelope("aaaaaaaa-0000-4000-9000-000000000001", 2)

	msg, err := env.Message()
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	if msg.Metadata.Get("session_id") != env.SessionID {
		t.Error("Expected session id in message metadata")
	}

	got, err := DecodeEnvelope(msg)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if got.SessionID != env.SessionID || len(got.Events) != 2 {
		t.Errorf("Round trip mismatch: %+v", got)
	}
	if !got.Arrival.Equal(env.Arrival) {
		t.Errorf("Arrival mismatch: got %v, want %v", got.Arrival, env.Arrival)
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope(message.NewMessage("1", []byte("not json"))); err == nil {
		t.Error("Expected error for malformed payload")
	}
	if _, err := DecodeEnvelope(message.NewMessage("2", []byte(`{"events":[]}`))); err == nil {
		t.Error("Expected error for missing session id")
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	pubSub := NewBus(16)

	store := &mockStore{}
	appender, err := NewAppender(store, AppenderConfig{BatchSize: 2, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewAppender failed: %v", err)
	}

	consumer, err := NewConsumer(pubSub, DefaultTopic, appender)
	if err != nil {
		t.Fatalf("NewConsumer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Run(ctx) //nolint:errcheck // returns ctx.Err on cancel
	}()

	publisher, err := NewPublisher(pubSub, DefaultTopic)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}

	if err := publisher.Publish(testEnvelope("s1", 1)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := publisher.Publish(testEnvelope("s2", 1)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Two single-event envelopes hit the batch size and flush to the store.
	waitFor(t, 5*time.Second, func() bool { return store.eventCount() == 2 })

	cancel()
	<-consumerDone
	if err := appender.Close(); err != nil {
		t.Fatalf("Appender close failed: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Publisher close failed: %v", err)
	}
}

// A batch acknowledged before the consumer's subscription attaches (startup
// ordering, consumer restart) must still reach the store once a subscriber
// arrives.
func TestBusHoldsMessagesForLateSubscriber(t *testing.T) {
	pubSub := NewBus(16)

	publisher, err := NewPublisher(pubSub, DefaultTopic)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	if err := publisher.Publish(testEnvelope("s1", 1)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// No subscriber existed at publish time; attach one now.
	store := &mockStore{}
	appender, err := NewAppender(store, AppenderConfig{BatchSize: 1, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewAppender failed: %v", err)
	}
	defer appender.Close()

	consumer, err := NewConsumer(pubSub, DefaultTopic, appender)
	if err != nil {
		t.Fatalf("NewConsumer failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx) //nolint:errcheck

	waitFor(t, 5*time.Second, func() bool { return store.eventCount() == 1 })
}

func TestConsumerDropsPoisonMessages(t *testing.T) {
	pubSub := NewBus(16)

	store := &mockStore{}
	appender, err := NewAppender(store, AppenderConfig{BatchSize: 1, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewAppender failed: %v", err)
	}
	defer appender.Close()

	consumer, err := NewConsumer(pubSub, DefaultTopic, appender)
	if err != nil {
		t.Fatalf("NewConsumer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx) //nolint:errcheck

	// A poison message is acked and dropped; the valid one behind it still
	// lands.
	if err := pubSub.Publish(DefaultTopic, message.NewMessage("poison", []byte("garbage"))); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	valid := testEnvelope("s1", 1)
	msg, err := valid.Message()
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	if err := pubSub.Publish(DefaultTopic, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return store.eventCount() == 1 })
}

func TestEnvelopeCarriesRawPayloads(t *testing.T) {
	env := &EventEnvelope{
		SessionID: "s1",
		Arrival:   time.Now().UTC(),
		Events: []models.EventInput{
			{Type: models.EventScroll, Data: json.RawMessage(`{"percent":42}`)},
		},
	}

	msg, err := env.Message()
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	got, err := DecodeEnvelope(msg)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}

	d := models.DecodeEventData(models.EventScroll, got.Events[0].Data)
	if pct, ok := d.ScrollPercent(); !ok || pct != 42 {
		t.Errorf("Expected scroll payload to survive transit, got %v (ok=%v)", pct, ok)
	}
}
