// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package simplify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/cognito-analytics/cognito/internal/config"
)

func TestNewGroqClientDisabledWithoutKey(t *testing.T) {
	if c := NewGroqClient(nil); c != nil {
		t.Error("Expected nil client for nil config")
	}
	if c := NewGroqClient(&config.SimplifyConfig{}); c != nil {
		t.Error("Expected nil client without an API key")
	}
}

func TestGroqClientComplete(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "Shorter sentences."}},
			},
		})
	}))
	defer server.Close()

	client := NewGroqClient(&config.SimplifyConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	if client == nil {
		t.Fatal("Expected configured client")
	}

	text, err := client.Complete(context.Background(), "simplify this")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "Shorter sentences." {
		t.Errorf("Unexpected completion: %q", text)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Unexpected auth header: %q", gotAuth)
	}
	if gotReq.Model != defaultModel {
		t.Errorf("Expected default model, got %q", gotReq.Model)
	}
	if gotReq.MaxTokens != completionMaxTokens || gotReq.Temperature != completionTemperature {
		t.Errorf("Unexpected sampling params: %+v", gotReq)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("Expected system+user messages, got %+v", gotReq.Messages)
	}
}

func TestGroqClientUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewGroqClient(&config.SimplifyConfig{APIKey: "k", BaseURL: server.URL})
	if _, err := client.Complete(context.Background(), "p"); err == nil {
		t.Error("Expected error for non-200 response")
	}
}

func TestGroqClientEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[]}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := NewGroqClient(&config.SimplifyConfig{APIKey: "k", BaseURL: server.URL})
	if _, err := client.Complete(context.Background(), "p"); err == nil {
		t.Error("Expected error for empty choices")
	}
}

func TestGroqClientBreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewGroqClient(&config.SimplifyConfig{APIKey: "k", BaseURL: server.URL})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		client.Complete(ctx, "p") //nolint:errcheck
	}
	// The breaker trips after 5 consecutive failures; later calls fail fast
	// without reaching the upstream.
	if calls >= 10 {
		t.Errorf("Expected circuit breaker to short-circuit, upstream saw %d calls", calls)
	}
}
