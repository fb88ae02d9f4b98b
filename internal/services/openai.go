package services

import (
	"context"
	"fmt"
	"net/http"
)

// CopyRequest carries the inputs for personalized email copy generation.
type CopyRequest struct {
	FirstName string
	LastName  string
	Company   string
	// EnrichmentContent is the research produced by the enrichment stage.
	EnrichmentContent string
}

// OpenAIClient is the adapter for the copy-generation API.
type OpenAIClient struct {
	client
	model string
}

// NewOpenAIClient creates a copy-generation adapter.
func NewOpenAIClient(httpClient *http.Client, baseURL, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client: newClient(httpClient, baseURL, apiKey),
		model:  "gpt-4o-mini",
	}
}

// GenerateCopy writes a personalized outbound email for the lead, grounded
// on the enrichment research. Rate limits surface as OutcomeRateLimited.
func (c *OpenAIClient) GenerateCopy(ctx context.Context, req CopyRequest) Outcome {
	prompt := fmt.Sprintf(
		"Write a short, personalized cold outreach email to %s %s at %s. "+
			"Ground the personalization in this research:\n\n%s",
		req.FirstName, req.LastName, req.Company, req.EnrichmentContent,
	)

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	payload, status, err := c.postJSON(ctx, "/v1/chat/completions", body)
	result := outcome(payload, status, err)
	if result.Kind != OutcomeSuccess {
		return result
	}

	content, ok := completionContent(payload)
	if !ok {
		return Failed("copy generation response missing completion content")
	}

	return Success(map[string]any{"content": content})
}
