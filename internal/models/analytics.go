// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

// EngagementSummary is the full metric set the dashboard renders for one
// filter combination. Every field is populated, possibly with zero values,
// for any input including the empty slice.
type EngagementSummary struct {
	TotalEvents    int               `json:"total_events"`
	UniqueSessions int               `json:"unique_sessions"`
	AvgDwellTime   float64           `json:"avg_dwell_time"` // seconds, 0 when no heartbeats
	ActiveUsers    int               `json:"active_users"`   // sessions with activity in the trailing 5 minutes
	EventTypes     map[string]int    `json:"event_types"`
	Hourly         []TimeSeriesPoint `json:"hourly"`
	TopPosts       []PostEngagement  `json:"top_posts"`
}

// TimeSeriesPoint is one hourly bucket of event activity. Labels use the
// fixed-width layout "2006-01-02 15:00" in UTC, so lexicographic order is
// chronological order.
type TimeSeriesPoint struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// PostEngagement ranks one post by raw event volume.
type PostEngagement struct {
	PostID int64 `json:"post_id"`
	Events int   `json:"events"`
}

// CognitiveLoadScore is the synthetic 0-100 engagement-intensity score for
// one post, averaged over the sessions that viewed it.
type CognitiveLoadScore struct {
	PostID   int64   `json:"post_id"`
	Score    float64 `json:"score"`
	Sessions int     `json:"sessions"`
}

// HeatmapSample is one weighted pointer coordinate feeding the density
// surface. Weight is always 1 in the current design.
type HeatmapSample struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Weight float64 `json:"weight"`
}

// HeatmapEvent is the raw heatmap query row: the event type plus its
// structured payload, for pointer-type events of one post's sessions.
type HeatmapEvent struct {
	EventType EventType `json:"event_type"`
	Data      EventData `json:"data"`
}

// Suggestion is one paragraph's simplification advice from the text
// simplification collaborator. Paragraph indexes are 1-based.
type Suggestion struct {
	Paragraph  int    `json:"paragraph"`
	Suggestion string `json:"suggestion"`
}
