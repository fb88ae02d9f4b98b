package services

import (
	"context"
	"fmt"
	"net/http"
)

// FetchParams describes one lead-fetch request.
type FetchParams struct {
	// SourceURL is the whitelisted people-search URL the leads come from.
	SourceURL string
	// Count is the number of leads requested, bounded by campaign validation.
	Count int
}

// FetchResult holds the raw lead records returned by the lead source.
type FetchResult struct {
	Leads []map[string]any
	Count int
}

// ApolloClient is the adapter for the lead-source API.
type ApolloClient struct {
	client
}

// NewApolloClient creates a lead-source adapter.
func NewApolloClient(httpClient *http.Client, baseURL, apiKey string) *ApolloClient {
	return &ApolloClient{client: newClient(httpClient, baseURL, apiKey)}
}

// FetchLeads fetches candidate leads for a campaign. Unlike the per-lead
// stage adapters this returns a plain error: fetch failures fail the
// FETCH_LEADS job rather than feeding a stage outcome.
func (c *ApolloClient) FetchLeads(ctx context.Context, params FetchParams) (*FetchResult, error) {
	body := map[string]any{
		"url":         params.SourceURL,
		"num_records": params.Count,
	}

	payload, status, err := c.postJSON(ctx, "/v1/leads/search", body)
	if err != nil {
		return nil, fmt.Errorf("fetch leads: %w", err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("fetch leads: %s", errorDetail(payload, status))
	}

	result := &FetchResult{}

	if raw, ok := payload["leads"].([]any); ok {
		result.Leads = make([]map[string]any, 0, len(raw))
		for _, entry := range raw {
			if record, isMap := entry.(map[string]any); isMap {
				result.Leads = append(result.Leads, record)
			}
		}
	}

	if count, ok := payload["count"].(float64); ok {
		result.Count = int(count)
	} else {
		result.Count = len(result.Leads)
	}

	return result, nil
}
