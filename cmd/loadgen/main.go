// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command loadgen drives the tracker SDK against a running Cognito server,
// simulating readers scrolling, clicking, and idling on a set of posts.
// Useful for exercising the ingestion path and populating the analytics
// endpoints with realistic data.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cognito-analytics/cognito/internal/config"
	"github.com/cognito-analytics/cognito/internal/logging"
	"github.com/cognito-analytics/cognito/internal/tracker"
)

func main() {
	endpoint := flag.String("endpoint", "http://localhost:8787/api/v1/track", "ingestion endpoint URL")
	readers := flag.Int("readers", 5, "concurrent simulated readers")
	posts := flag.Int("posts", 3, "number of distinct posts to read")
	duration := flag.Duration("duration", time.Minute, "how long each reader stays on the page")
	flushInterval := flag.Duration("flush", 10*time.Second, "tracker flush interval")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := &config.TrackerConfig{
		Endpoint:      *endpoint,
		FlushInterval: *flushInterval,
		IdleThreshold: 30 * time.Second,
	}
	sender := tracker.NewHTTPSender(cfg)

	logging.Info().
		Str("endpoint", *endpoint).
		Int("readers", *readers).
		Int("posts", *posts).
		Msg("Starting load generation")

	var wg sync.WaitGroup
	for i := 0; i < *readers; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			simulateReader(ctx, cfg, sender, reader, *posts, *duration)
		}(i)
	}
	wg.Wait()

	logging.Info().Msg("Load generation finished")
}

// simulateReader walks one session through a plausible reading arc: steady
// scroll progress with occasional pointer activity and clicks.
func simulateReader(ctx context.Context, cfg *config.TrackerConfig, sender tracker.Sender, reader, posts int, duration time.Duration) {
	postID := int64(1 + rand.Intn(posts)) //nolint:gosec // simulation, not security
	pageURL := fmt.Sprintf("https://example.com/posts/%d", postID)

	t := tracker.New(cfg, postID, pageURL, sender)
	t.Start(ctx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		t.Close(closeCtx)
		stats := t.Stats()
		logging.Info().
			Int("reader", reader).
			Int64("post_id", postID).
			Str("session_id", t.SessionID()).
			Int64("events_sent", stats.EventsSent).
			Int64("events_failed", stats.EventsFailed).
			Msg("Reader finished")
	}()

	const docHeight, viewport = 4000.0, 800.0
	deadline := time.After(duration)
	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()

	scrollTop := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-tick.C:
			scrollTop += rand.Float64() * 400 //nolint:gosec
			if scrollTop > docHeight-viewport {
				scrollTop = docHeight - viewport
			}
			t.RecordScroll(scrollTop, viewport, docHeight)
			for j := 0; j < rand.Intn(8); j++ { //nolint:gosec
				t.RecordMouseMove()
			}
			if rand.Intn(10) == 0 { //nolint:gosec
				t.RecordClick(tracker.Target{Tag: "A", Text: "Read more", Href: pageURL + "#more"})
			}
		}
	}
}
