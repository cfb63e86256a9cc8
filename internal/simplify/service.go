// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package simplify produces per-paragraph readability suggestions by asking
// an external language-completion service how to make each paragraph easier
// to understand. The collaborator is best-effort: a failed or unconfigured
// call yields a fallback placeholder, never an error to the caller.
package simplify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cognito-analytics/cognito/internal/logging"
	"github.com/cognito-analytics/cognito/internal/models"
)

// Fallback is returned for any paragraph whose completion call failed or
// when no completion service is configured.
const Fallback = "No suggestion available."

const promptTemplate = "This is a paragraph from a blog post:\n\n\"%s\"\n\n" +
	"Suggest how to make it easier to understand for a general audience. " +
	"Be specific and concise."

var (
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
	paragraphPattern = regexp.MustCompile(`\n+`)
)

// CompletionClient is the opaque language-completion collaborator.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service turns article content into per-paragraph suggestions.
type Service struct {
	client CompletionClient
}

// NewService builds the service. A nil client means the collaborator is not
// configured; every paragraph then receives the fallback.
func NewService(client CompletionClient) *Service {
	return &Service{client: client}
}

// Enabled reports whether a completion client is wired in.
func (s *Service) Enabled() bool {
	return s.client != nil
}

// SplitParagraphs strips markup and breaks the content on newline runs,
// dropping paragraphs that are empty after trimming.
func SplitParagraphs(content string) []string {
	plain := tagPattern.ReplaceAllString(content, "")
	parts := paragraphPattern.Split(plain, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// Suggest returns one suggestion per non-empty paragraph, indexed from 1.
// Each paragraph gets its own completion call; a failure affects only that
// paragraph's entry, so partial batches still come back whole.
func (s *Service) Suggest(ctx context.Context, content string) []models.Suggestion {
	paragraphs := SplitParagraphs(content)
	suggestions := make([]models.Suggestion, 0, len(paragraphs))

	for i, p := range paragraphs {
		suggestions = append(suggestions, models.Suggestion{
			Paragraph:  i + 1,
			Suggestion: s.suggestOne(ctx, p),
		})
	}
	return suggestions
}

func (s *Service) suggestOne(ctx context.Context, paragraph string) string {
	if s.client == nil {
		return Fallback
	}

	text, err := s.client.Complete(ctx, fmt.Sprintf(promptTemplate, paragraph))
	if err != nil {
		logging.Err(err).Msg("Completion call failed, using fallback suggestion")
		return Fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Fallback
	}
	return text
}
