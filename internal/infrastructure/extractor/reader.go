package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"
)

// ReaderClient talks to a remote reader service that renders a page as plain text
// (GET {endpoint}/{url}).
type ReaderClient struct {
	endpoint string
	apiKey   string
	http     *resty.Client
}

// NewReaderClient creates a reusable HTTP client.
func NewReaderClient(endpoint, apiKey string, timeout time.Duration) *ReaderClient {
	return &ReaderClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     resty.New().SetTimeout(timeout),
	}
}

// Read returns the rendered text of articleURL.
func (c *ReaderClient) Read(ctx context.Context, articleURL string) (string, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/plain")
	if c.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := req.Get(c.endpoint + "/" + articleURL)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return strings.TrimSpace(resp.String()), nil
}

// Close releases idle connections.
func (c *ReaderClient) Close() error {
	return c.http.Close()
}
