// ABOUTME: HTTP implementation of the weather Provider
// ABOUTME: Queries a JSON weather API for current conditions and forecasts

package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPProvider fetches conditions from a JSON weather API.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPProvider creates a provider for the given API base URL.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type apiConditions struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

func (p *HTTPProvider) fetch(ctx context.Context, path string, params url.Values) (*Conditions, error) {
	params.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather api status %d", resp.StatusCode)
	}

	var body apiConditions
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding weather response: %w", err)
	}

	return &Conditions{SubjectID: body.ID, SubjectName: body.Name, Summary: body.Summary}, nil
}

// Current fetches current conditions for a free-text city query.
func (p *HTTPProvider) Current(ctx context.Context, query, units string) (*Conditions, error) {
	return p.fetch(ctx, "/current", url.Values{"q": {query}, "units": {units}})
}

// CurrentByLocation fetches current conditions for coordinates.
func (p *HTTPProvider) CurrentByLocation(ctx context.Context, lat, lon float64, units string) (*Conditions, error) {
	return p.fetch(ctx, "/current", url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', -1, 64)},
		"units": {units},
	})
}

// Forecast fetches the multi-day outlook for a free-text city query.
func (p *HTTPProvider) Forecast(ctx context.Context, query, units string) (*Conditions, error) {
	return p.fetch(ctx, "/forecast", url.Values{"q": {query}, "units": {units}})
}

var _ Provider = (*HTTPProvider)(nil)
