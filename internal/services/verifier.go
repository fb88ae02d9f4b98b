package services

import (
	"context"
	"net/http"
	"net/url"
)

// VerifierClient is the adapter for the email verification API.
type VerifierClient struct {
	client
}

// NewVerifierClient creates an email verification adapter.
func NewVerifierClient(httpClient *http.Client, baseURL, apiKey string) *VerifierClient {
	return &VerifierClient{client: newClient(httpClient, baseURL, apiKey)}
}

// Verify checks deliverability of one email address. The result is advisory:
// a non-deliverable verdict is recorded on the lead but never blocks the
// rest of the pipeline.
func (c *VerifierClient) Verify(ctx context.Context, email string) Outcome {
	path := "/api/v3/verify?email=" + url.QueryEscape(email)

	payload, status, err := c.getJSON(ctx, path)
	return outcome(payload, status, err)
}
