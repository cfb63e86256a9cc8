// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package tracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/cognito-analytics/cognito/internal/config"
	"github.com/cognito-analytics/cognito/internal/models"
)

// Sender transmits one captured batch to the ingestion endpoint.
type Sender interface {
	Send(ctx context.Context, req *models.TrackRequest) error
}

const defaultSendTimeout = 5 * time.Second

// HTTPSender posts batches as JSON to the track endpoint.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender builds a sender for the configured ingestion endpoint.
func NewHTTPSender(cfg *config.TrackerConfig) *HTTPSender {
	timeout := defaultSendTimeout
	endpoint := ""
	if cfg != nil {
		endpoint = cfg.Endpoint
		if cfg.SendTimeout > 0 {
			timeout = cfg.SendTimeout
		}
	}
	return &HTTPSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Send posts the batch. Any non-2xx status is a transmission failure; the
// caller decides what to do with the batch (the tracker drops it).
func (s *HTTPSender) Send(ctx context.Context, req *models.TrackRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		resp.Body.Close()              //nolint:errcheck
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("track endpoint returned %d", resp.StatusCode)
	}
	return nil
}
