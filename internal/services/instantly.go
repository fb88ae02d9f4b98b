package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// InstantlyClient is the adapter for the outbound platform API.
type InstantlyClient struct {
	client
}

// NewInstantlyClient creates an outbound platform adapter.
func NewInstantlyClient(httpClient *http.Client, baseURL, apiKey string) *InstantlyClient {
	return &InstantlyClient{client: newClient(httpClient, baseURL, apiKey)}
}

// CreateCampaign creates an outbound campaign and returns its ID.
func (c *InstantlyClient) CreateCampaign(ctx context.Context, name string) (string, error) {
	payload, status, err := c.postJSON(ctx, "/api/v2/campaigns", map[string]any{"name": name})
	if err != nil {
		return "", fmt.Errorf("create outbound campaign: %w", err)
	}
	if status >= 400 {
		return "", fmt.Errorf("create outbound campaign: %s", errorDetail(payload, status))
	}

	id, ok := payload["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("create outbound campaign: response missing id")
	}
	return id, nil
}

// CreateLead registers a lead on the outbound campaign with its
// personalization attached.
func (c *InstantlyClient) CreateLead(ctx context.Context, campaignRef, email, firstName, personalization string) Outcome {
	body := map[string]any{
		"campaign":        campaignRef,
		"email":           email,
		"first_name":      firstName,
		"personalization": personalization,
	}

	payload, status, err := c.postJSON(ctx, "/api/v2/leads", body)
	return outcome(payload, status, err)
}

// GetAnalyticsOverview fetches campaign-level analytics from the outbound
// platform.
func (c *InstantlyClient) GetAnalyticsOverview(ctx context.Context, campaignRef string) (map[string]any, error) {
	path := "/api/v2/campaigns/analytics/overview?id=" + url.QueryEscape(campaignRef)

	payload, status, err := c.getJSON(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("analytics overview: %w", err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("analytics overview: %s", errorDetail(payload, status))
	}
	return payload, nil
}
