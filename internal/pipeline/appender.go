// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cognito-analytics/cognito/internal/logging"
	"github.com/cognito-analytics/cognito/internal/metrics"
	"github.com/cognito-analytics/cognito/internal/models"
)

// flushTimeout bounds one store write independently of the caller's
// context, which may be a message-handler context cancelled the moment the
// handler returns.
const flushTimeout = 30 * time.Second

// EventStore is the persistence surface the appender flushes into.
type EventStore interface {
	InsertEvents(ctx context.Context, sessionID string, arrival time.Time, events []models.EventInput) error
}

// AppenderStats holds runtime counters for monitoring.
type AppenderStats struct {
	EnvelopesReceived int64
	EventsFlushed     int64
	FlushCount        int64
	ErrorCount        int64
	LastError         string
	BufferedEvents    int
}

// AppenderConfig tunes batching behavior.
type AppenderConfig struct {
	BatchSize     int           // flush when this many events are buffered
	FlushInterval time.Duration // flush at least this often
}

// Appender buffers envelopes and writes them to the store in batches,
// flushing when the buffered event count reaches BatchSize or the interval
// elapses.
//
// Flushes are serialized so that timer-based and size-triggered flushes
// never interleave; envelopes reach the store in arrival order. On a store
// error the unflushed tail is restored to the buffer for the next attempt.
type Appender struct {
	store  EventStore
	config AppenderConfig

	mu       sync.Mutex
	buffer   []*EventEnvelope
	buffered int // event count across buffered envelopes

	// flushMu serializes flush operations.
	flushMu sync.Mutex

	closed   atomic.Bool
	started  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}
	flushWg  sync.WaitGroup

	envelopesReceived atomic.Int64
	eventsFlushed     atomic.Int64
	flushCount        atomic.Int64
	errorCount        atomic.Int64
	lastError         atomic.Value // string
}

// NewAppender builds an appender over the store.
func NewAppender(store EventStore, cfg AppenderConfig) (*Appender, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive")
	}

	a := &Appender{
		store:    store,
		config:   cfg,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	a.lastError.Store("")
	return a, nil
}

// Start begins the periodic flush timer. Idempotent.
func (a *Appender) Start(ctx context.Context) error {
	if a.closed.Load() {
		return fmt.Errorf("appender is closed")
	}
	if a.started.Swap(true) {
		return nil
	}
	go a.flushLoop(ctx)
	return nil
}

// Add buffers one envelope. When the buffered event count reaches the batch
// size an async flush is triggered.
func (a *Appender) Add(env *EventEnvelope) error {
	if a.closed.Load() {
		return fmt.Errorf("appender is closed")
	}

	a.mu.Lock()
	a.buffer = append(a.buffer, env)
	a.buffered += len(env.Events)
	needsFlush := a.buffered >= a.config.BatchSize
	a.mu.Unlock()

	a.envelopesReceived.Add(1)

	if needsFlush {
		a.flushWg.Add(1)
		go func() {
			defer a.flushWg.Done()
			// Detached context: the triggering message handler may return
			// (and cancel its context) before the write completes.
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			if err := a.doFlush(ctx); err != nil {
				logging.Debug().Err(err).Msg("Async appender flush failed")
			}
		}()
	}
	return nil
}

// Flush writes all buffered envelopes, waiting out any in-flight async
// flush first.
func (a *Appender) Flush(ctx context.Context) error {
	a.flushWg.Wait()
	return a.doFlush(ctx)
}

// Close stops the timer and drains the buffer. Idempotent.
func (a *Appender) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.started.Load() {
		close(a.stopChan)
		<-a.doneChan
	}
	a.flushWg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	return a.doFlush(ctx)
}

// Stats returns runtime counters.
func (a *Appender) Stats() AppenderStats {
	a.mu.Lock()
	buffered := a.buffered
	a.mu.Unlock()

	lastError, _ := a.lastError.Load().(string)
	return AppenderStats{
		EnvelopesReceived: a.envelopesReceived.Load(),
		EventsFlushed:     a.eventsFlushed.Load(),
		FlushCount:        a.flushCount.Load(),
		ErrorCount:        a.errorCount.Load(),
		LastError:         lastError,
		BufferedEvents:    buffered,
	}
}

func (a *Appender) flushLoop(ctx context.Context) {
	defer close(a.doneChan)

	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-ticker.C:
			// The parent context only controls shutdown; each flush gets
			// its own deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := a.doFlush(flushCtx); err != nil {
				logging.Debug().Err(err).Msg("Periodic appender flush failed")
			}
			cancel()
		}
	}
}

func (a *Appender) doFlush(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return nil
	}
	envelopes := a.buffer
	a.buffer = nil
	a.buffered = 0
	a.mu.Unlock()

	start := time.Now()
	flushed := 0
	for i, env := range envelopes {
		if err := a.store.InsertEvents(ctx, env.SessionID, env.Arrival, env.Events); err != nil {
			// Restore the unflushed tail for the next attempt.
			unflushed := envelopes[i:]
			a.mu.Lock()
			a.buffer = append(unflushed, a.buffer...)
			for _, u := range unflushed {
				a.buffered += len(u.Events)
			}
			a.mu.Unlock()

			a.errorCount.Add(1)
			a.lastError.Store(err.Error())
			if flushed > 0 {
				a.eventsFlushed.Add(int64(flushed))
			}
			return fmt.Errorf("flush envelope %d/%d: %w", i+1, len(envelopes), err)
		}
		flushed += len(env.Events)
	}

	metrics.AppenderFlushDuration.Observe(time.Since(start).Seconds())
	a.eventsFlushed.Add(int64(flushed))
	a.flushCount.Add(1)

	logging.Trace().
		Int("envelopes", len(envelopes)).
		Int("events", flushed).
		Msg("Appender flushed batch to store")
	return nil
}
