package services

import (
	"context"
	"fmt"
	"net/http"
)

// EnrichProfile carries the lead fields the enrichment prompt is built from.
// All fields are validated non-empty before the call is made.
type EnrichProfile struct {
	FirstName string
	LastName  string
	Headline  string
	Company   string
}

// PerplexityClient is the adapter for the enrichment API.
type PerplexityClient struct {
	client
	model string
}

// NewPerplexityClient creates an enrichment adapter.
func NewPerplexityClient(httpClient *http.Client, baseURL, apiKey string) *PerplexityClient {
	return &PerplexityClient{
		client: newClient(httpClient, baseURL, apiKey),
		model:  "sonar",
	}
}

// Enrich researches a lead's professional background. The API has a
// distinguishable rate-limit error shape which surfaces as OutcomeRateLimited.
func (c *PerplexityClient) Enrich(ctx context.Context, profile EnrichProfile) Outcome {
	prompt := fmt.Sprintf(
		"Research %s %s, %s at %s. Summarize their professional background, "+
			"recent activity, and company focus in a few short paragraphs.",
		profile.FirstName, profile.LastName, profile.Headline, profile.Company,
	)

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	payload, status, err := c.postJSON(ctx, "/chat/completions", body)
	result := outcome(payload, status, err)
	if result.Kind != OutcomeSuccess {
		return result
	}

	content, ok := completionContent(payload)
	if !ok {
		return Failed("enrichment response missing completion content")
	}

	return Success(map[string]any{"content": content})
}

// completionContent extracts choices[0].message.content from an
// OpenAI-compatible chat completion response.
func completionContent(payload map[string]any) (string, bool) {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	message, ok := first["message"].(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := message["content"].(string)
	return content, ok && content != ""
}
