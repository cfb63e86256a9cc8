// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package analytics derives engagement metrics from event slices. Every
// function is a pure synchronous pass over already-fetched data: no store
// access, no shared state, safe at arbitrary concurrency. Malformed event
// payloads degrade per-metric; an event missing a field is skipped only by
// the metrics that need that field.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/cognito-analytics/cognito/internal/config"
	"github.com/cognito-analytics/cognito/internal/models"
)

const (
	defaultActiveWindow = 5 * time.Minute
	defaultTopPosts     = 5

	// hourLabelLayout is fixed-width with zero-padded components, so
	// lexicographic label order is chronological order.
	hourLabelLayout = "2006-01-02 15:00"
)

// Cognitive-load model constants. Sub-scores normalize against these caps
// before the weighted blend.
const (
	dwellCapSeconds  = 300.0
	interactionCap   = 50.0
	scrollWeight      = 0.4
	dwellWeight       = 0.3
	interactionWeight = 0.3
)

// Filter narrows an event slice. Zero-value fields match everything; set
// fields combine conjunctively, so application order never changes the
// result. The time range is inclusive on both ends.
type Filter struct {
	EventType models.EventType
	PostID    int64
	From      time.Time
	To        time.Time
}

// Apply returns the events matching the filter, preserving input order.
func (f Filter) Apply(events []models.Event) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.PostID > 0 && e.PostID != f.PostID {
			continue
		}
		if !f.From.IsZero() && e.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Timestamp.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Engine computes dashboard summaries. The zero value is usable; NewEngine
// applies configured overrides for the active-user window and top-post
// truncation.
type Engine struct {
	activeWindow time.Duration
	topPosts     int
}

// NewEngine builds an engine from configuration, falling back to the
// standard 5-minute window and top-5 truncation for unset values.
func NewEngine(cfg *config.AnalyticsConfig) *Engine {
	e := &Engine{
		activeWindow: defaultActiveWindow,
		topPosts:     defaultTopPosts,
	}
	if cfg != nil {
		if cfg.ActiveWindow > 0 {
			e.activeWindow = cfg.ActiveWindow
		}
		if cfg.TopPosts > 0 {
			e.topPosts = cfg.TopPosts
		}
	}
	return e
}

// Summarize derives the full metric set for one event slice. The result is
// always fully populated: an empty slice yields zero counts, an empty
// histogram and empty series, never an error.
//
// Active users counts distinct sessions with at least one event inside
// [now-window, now]; the lower boundary is inclusive.
func (e *Engine) Summarize(events []models.Event, now time.Time) models.EngagementSummary {
	window := e.activeWindow
	if window <= 0 {
		window = defaultActiveWindow
	}
	topN := e.topPosts
	if topN <= 0 {
		topN = defaultTopPosts
	}

	summary := models.EngagementSummary{
		TotalEvents: len(events),
		EventTypes:  map[string]int{},
		Hourly:      []models.TimeSeriesPoint{},
		TopPosts:    []models.PostEngagement{},
	}

	sessions := map[string]struct{}{}
	active := map[string]struct{}{}
	hourly := map[string]int{}
	postCounts := map[int64]int{}
	postOrder := []int64{}

	windowStart := now.Add(-window)
	var dwellSum float64
	var dwellN int

	for _, ev := range events {
		sessions[ev.SessionID] = struct{}{}
		summary.EventTypes[string(ev.EventType)]++

		ts := ev.Timestamp.UTC()
		if !ts.Before(windowStart) && !ts.After(now) {
			active[ev.SessionID] = struct{}{}
		}

		hourly[ts.Truncate(time.Hour).Format(hourLabelLayout)]++

		if ev.EventType == models.EventHeartbeat {
			if t, ok := ev.Data.TimeOnPage(); ok {
				dwellSum += t
				dwellN++
			}
		}

		if ev.PostID > 0 {
			if _, seen := postCounts[ev.PostID]; !seen {
				postOrder = append(postOrder, ev.PostID)
			}
			postCounts[ev.PostID]++
		}
	}

	summary.UniqueSessions = len(sessions)
	summary.ActiveUsers = len(active)
	if dwellN > 0 {
		summary.AvgDwellTime = dwellSum / float64(dwellN)
	}

	labels := make([]string, 0, len(hourly))
	for label := range hourly {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		summary.Hourly = append(summary.Hourly, models.TimeSeriesPoint{Label: label, Count: hourly[label]})
	}

	// Stable sort keeps first-seen order between equal counts.
	ranked := make([]models.PostEngagement, 0, len(postOrder))
	for _, id := range postOrder {
		ranked = append(ranked, models.PostEngagement{PostID: id, Events: postCounts[id]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Events > ranked[j].Events
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	summary.TopPosts = ranked

	return summary
}

// sessionLoad accumulates one (post, session) pair's raw inputs. Transient:
// rebuilt from scratch on every aggregation pass, never persisted.
type sessionLoad struct {
	scrollSum    float64
	scrollN      int
	maxDwell     float64
	interactions int
}

func (l *sessionLoad) score() float64 {
	var scroll float64
	if l.scrollN > 0 {
		scroll = math.Min(l.scrollSum/float64(l.scrollN)/100.0, 1.0)
	}
	dwell := math.Min(l.maxDwell/dwellCapSeconds, 1.0)
	interaction := math.Min(float64(l.interactions)/interactionCap, 1.0)
	return (scrollWeight*scroll + dwellWeight*dwell + interactionWeight*interaction) * 100
}

// CognitiveLoad scores each post's engagement intensity on a 0-100 scale.
// Per (post, session): scroll depth is the mean observed scroll percentage,
// dwell is the maximum reported time on page against a 300-second cap, and
// interaction density is the click-plus-mousemove count against a cap of 50.
// The post's score is the rounded mean over its sessions; a post with no
// qualifying sessions scores 0. Posts appear in first-seen order.
func CognitiveLoad(events []models.Event) []models.CognitiveLoadScore {
	type key struct {
		post    int64
		session string
	}
	loads := map[key]*sessionLoad{}
	postOrder := []int64{}
	seenPost := map[int64]bool{}

	for _, ev := range events {
		if ev.PostID <= 0 {
			continue
		}
		if !seenPost[ev.PostID] {
			seenPost[ev.PostID] = true
			postOrder = append(postOrder, ev.PostID)
		}

		k := key{post: ev.PostID, session: ev.SessionID}
		l := loads[k]
		if l == nil {
			l = &sessionLoad{}
			loads[k] = l
		}

		switch ev.EventType {
		case models.EventScroll:
			if pct, ok := ev.Data.ScrollPercent(); ok {
				l.scrollSum += pct
				l.scrollN++
			}
		case models.EventHeartbeat:
			if t, ok := ev.Data.TimeOnPage(); ok && t > l.maxDwell {
				l.maxDwell = t
			}
		case models.EventClick, models.EventMouseMove:
			l.interactions++
		}
	}

	scores := make([]models.CognitiveLoadScore, 0, len(postOrder))
	for _, post := range postOrder {
		var sum float64
		var n int
		for k, l := range loads {
			if k.post != post {
				continue
			}
			sum += l.score()
			n++
		}
		score := models.CognitiveLoadScore{PostID: post, Sessions: n}
		if n > 0 {
			score.Score = math.Round(sum / float64(n))
		}
		scores = append(scores, score)
	}
	return scores
}

// HeatmapSamples extracts unit-weight (x, y) samples from pointer-type
// events that carry numeric coordinates, preserving capture order. Events
// without coordinates are skipped.
func HeatmapSamples(events []models.Event) []models.HeatmapSample {
	samples := []models.HeatmapSample{}
	for _, ev := range events {
		if !isPointerType(ev.EventType) {
			continue
		}
		x, y, ok := ev.Data.Coordinates()
		if !ok {
			continue
		}
		samples = append(samples, models.HeatmapSample{X: x, Y: y, Weight: 1})
	}
	return samples
}

func isPointerType(t models.EventType) bool {
	for _, pt := range models.PointerTypes {
		if t == pt {
			return true
		}
	}
	return false
}
