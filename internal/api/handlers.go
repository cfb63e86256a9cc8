// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api exposes the HTTP surface: event ingestion, event and heatmap
// queries, the aggregated analytics endpoints, the text-simplification
// endpoint, and health checks.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/cognito-analytics/cognito/internal/analytics"
	"github.com/cognito-analytics/cognito/internal/cache"
	"github.com/cognito-analytics/cognito/internal/config"
	"github.com/cognito-analytics/cognito/internal/database"
	"github.com/cognito-analytics/cognito/internal/logging"
	"github.com/cognito-analytics/cognito/internal/metrics"
	"github.com/cognito-analytics/cognito/internal/models"
	"github.com/cognito-analytics/cognito/internal/pipeline"
	"github.com/cognito-analytics/cognito/internal/simplify"
	"github.com/cognito-analytics/cognito/internal/validation"
)

const (
	// maxTrackBodyBytes bounds ingestion request bodies. A 10s capture
	// window cannot legitimately produce more than this.
	maxTrackBodyBytes = 1 << 20

	// defaultEventsLimit caps unfiltered event queries.
	defaultEventsLimit = 1000

	defaultCacheTTL = 5 * time.Minute
)

// Handler carries the dependencies of every route.
type Handler struct {
	db        *database.DB
	cfg       *config.Config
	engine    *analytics.Engine
	cache     *cache.Cache
	simplify  *simplify.Service
	publisher *pipeline.Publisher // nil = synchronous writes
	now       func() time.Time
}

// NewHandler wires the HTTP handlers. publisher may be nil, in which case
// accepted batches are written to the store synchronously.
func NewHandler(db *database.DB, cfg *config.Config, svc *simplify.Service, publisher *pipeline.Publisher) *Handler {
	ttl := defaultCacheTTL
	if cfg != nil && cfg.Analytics.CacheTTL > 0 {
		ttl = cfg.Analytics.CacheTTL
	}
	var engineCfg *config.AnalyticsConfig
	if cfg != nil {
		engineCfg = &cfg.Analytics
	}
	if svc == nil {
		svc = simplify.NewService(nil)
	}
	return &Handler{
		db:        db,
		cfg:       cfg,
		engine:    analytics.NewEngine(engineCfg),
		cache:     cache.New(ttl),
		simplify:  svc,
		publisher: publisher,
		now:       time.Now,
	}
}

// Track ingests one batch of events for a session. The session header is
// upserted synchronously; event rows are written directly or handed to the
// pipeline depending on configuration.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTrackBodyBytes)

	var req models.TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, codeInvalidData, "Missing or invalid data", err)
		return
	}

	if verr := validation.Struct(&req); verr != nil {
		metrics.IngestBatchesTotal.WithLabelValues("invalid").Inc()
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: h.now().UTC()},
			Error: &models.APIError{
				Code:    codeInvalidData,
				Message: "Missing or invalid data",
				Details: verr.Details(),
			},
		})
		return
	}

	ctx := r.Context()
	arrival := h.now().UTC()

	session := &models.Session{
		SessionID:   req.SessionID,
		PostID:      req.PostID,
		PageURL:     req.PageURL,
		StartTime:   arrival,
		UserAgent:   r.UserAgent(),
		IsAnonymous: true,
	}
	if raw := r.Header.Get("X-User-ID"); raw != "" {
		if userID, err := strconv.ParseInt(raw, 10, 64); err == nil && userID > 0 {
			session.UserID = &userID
			session.IsAnonymous = false
		}
	}

	if _, err := h.db.UpsertSession(ctx, session); err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("error").Inc()
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "Failed to record session", err)
		return
	}

	if h.publisher != nil {
		err := h.publisher.Publish(&pipeline.EventEnvelope{
			SessionID: req.SessionID,
			Arrival:   arrival,
			Events:    req.Events,
		})
		if err != nil {
			metrics.IngestBatchesTotal.WithLabelValues("error").Inc()
			respondError(w, http.StatusInternalServerError, codeInternalError, "Failed to enqueue events", err)
			return
		}
	} else {
		if err := h.db.InsertEvents(ctx, req.SessionID, arrival, req.Events); err != nil {
			metrics.IngestBatchesTotal.WithLabelValues("error").Inc()
			respondError(w, http.StatusInternalServerError, codeDatabaseError, "Failed to record events", err)
			return
		}
	}

	if req.Closing {
		if err := h.db.CloseSession(ctx, req.SessionID, arrival); err != nil {
			// The events landed; losing the end_time stamp is not worth
			// failing the batch over.
			logging.Err(err).Str("session_id", req.SessionID).Msg("Failed to close session")
		}
	}

	metrics.IngestBatchesTotal.WithLabelValues("ok").Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(models.TrackResponse{Success: true}); err != nil {
		logging.Err(err).Msg("Failed to write track response")
	}
}

// Events returns stored events newest-first, filtered by the query
// parameters type, post_id, from and to.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	filter := database.EventFilter{
		EventType: models.EventType(r.URL.Query().Get("type")),
		PostID:    getInt64Param(r, "post_id"),
		From:      getTimeParam(r, "from"),
		To:        getTimeParam(r, "to"),
		Limit:     getIntParam(r, "limit", defaultEventsLimit),
	}

	start := time.Now()
	events, err := h.db.QueryEvents(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "Failed to query events", err)
		return
	}

	respondSuccess(w, http.StatusOK, events, models.Metadata{
		Timestamp:   h.now().UTC(),
		QueryTimeMS: time.Since(start).Milliseconds(),
	})
}

// Heatmap returns the pointer-type events of one post's sessions in capture
// order, as {event_type, data} pairs.
func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	postID := getInt64Param(r, "post_id")
	if postID <= 0 {
		respondError(w, http.StatusBadRequest, codeValidation, "post_id is required", nil)
		return
	}

	start := time.Now()
	events, err := h.db.HeatmapEvents(r.Context(), postID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "Failed to query heatmap events", err)
		return
	}

	heatmap := make([]models.HeatmapEvent, 0, len(events))
	for _, ev := range events {
		heatmap = append(heatmap, models.HeatmapEvent{EventType: ev.EventType, Data: ev.Data})
	}

	respondSuccess(w, http.StatusOK, heatmap, models.Metadata{
		Timestamp:   h.now().UTC(),
		QueryTimeMS: time.Since(start).Milliseconds(),
	})
}

// summaryParams keys the analytics response cache.
type summaryParams struct {
	Type   string `json:"type"`
	PostID int64  `json:"post_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// AnalyticsSummary returns the full dashboard metric set for the filtered
// event slice. Responses are cached briefly; the dashboard polls faster
// than the data meaningfully changes.
func (h *Handler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	filter := database.EventFilter{
		EventType: models.EventType(r.URL.Query().Get("type")),
		PostID:    getInt64Param(r, "post_id"),
		From:      getTimeParam(r, "from"),
		To:        getTimeParam(r, "to"),
	}

	key := cache.GenerateKey("analytics_summary", summaryParams{
		Type:   string(filter.EventType),
		PostID: filter.PostID,
		From:   filter.From.Format(time.RFC3339),
		To:     filter.To.Format(time.RFC3339),
	})
	if cached, ok := h.cache.Get(key); ok {
		if summary, ok := cached.(models.EngagementSummary); ok {
			respondSuccess(w, http.StatusOK, summary, models.Metadata{
				Timestamp: h.now().UTC(),
				Cached:    true,
			})
			return
		}
	}

	start := time.Now()
	events, err := h.db.QueryEvents(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "Failed to query events", err)
		return
	}

	summary := h.engine.Summarize(reverse(events), h.now().UTC())
	h.cache.Set(key, summary)

	respondSuccess(w, http.StatusOK, summary, models.Metadata{
		Timestamp:   h.now().UTC(),
		QueryTimeMS: time.Since(start).Milliseconds(),
	})
}

// CognitiveLoad returns the per-post engagement-intensity scores, optionally
// scoped to one post.
func (h *Handler) CognitiveLoad(w http.ResponseWriter, r *http.Request) {
	filter := database.EventFilter{
		PostID: getInt64Param(r, "post_id"),
		From:   getTimeParam(r, "from"),
		To:     getTimeParam(r, "to"),
	}

	start := time.Now()
	events, err := h.db.QueryEvents(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "Failed to query events", err)
		return
	}

	scores := analytics.CognitiveLoad(reverse(events))

	respondSuccess(w, http.StatusOK, scores, models.Metadata{
		Timestamp:   h.now().UTC(),
		QueryTimeMS: time.Since(start).Milliseconds(),
	})
}

// suggestRequest is the text-simplification request body.
type suggestRequest struct {
	Content string `json:"content" validate:"required"`
}

// Suggest runs the text-simplification collaborator over the posted content
// and returns one suggestion per paragraph. Upstream failures degrade to
// fallback suggestions, never to an error response.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "No content provided", err)
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, codeValidation, "No content provided", nil)
		return
	}

	suggestions := h.simplify.Suggest(r.Context(), req.Content)

	respondSuccess(w, http.StatusOK, suggestions, models.Metadata{
		Timestamp: h.now().UTC(),
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ok"}, models.Metadata{
		Timestamp: h.now().UTC(),
	})
}

// Ready reports readiness: the store must answer a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, codeDatabaseError, "Event store unavailable", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ready"}, models.Metadata{
		Timestamp: h.now().UTC(),
	})
}

// reverse flips a newest-first query result into capture order for the
// aggregation engine, which relies on input encounter order for tie
// breaking.
func reverse(events []models.Event) []models.Event {
	out := make([]models.Event, len(events))
	for i, ev := range events {
		out[len(events)-1-i] = ev
	}
	return out
}
