// ABOUTME: HTTP implementation of the routing Provider
// ABOUTME: Queries a JSON routing API for a route between two addresses

package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPProvider fetches routes from a JSON routing API.
type HTTPProvider struct {
	baseURL string
	http    *http.Client
}

// NewHTTPProvider creates a provider for the given API base URL.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Route fetches a textual route description between two addresses.
func (p *HTTPProvider) Route(ctx context.Context, origin, destination string) (string, error) {
	params := url.Values{"from": {origin}, "to": {destination}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/route?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("routing api status %d", resp.StatusCode)
	}

	var body struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding route response: %w", err)
	}

	return body.Summary, nil
}

var _ Provider = (*HTTPProvider)(nil)
