package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultGoogleEndpoint is the Google Geocoding JSON endpoint.
const DefaultGoogleEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleConfig configures a Google Geocoding client.
type GoogleConfig struct {
	APIKey   string
	Endpoint string
	// RequestsPerSecond caps outbound calls; 0 selects 10.
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Google queries the Google Geocoding API.
type Google struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewGoogle creates a client. An API key is required.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("geocode: google api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGoogleEndpoint
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Google{
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}, nil
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// PostalCode returns the postal_code component of the first result carrying
// one.
func (g *Google) PostalCode(ctx context.Context, address string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("geocode: rate limit: %w", err)
	}
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("geocode: build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}
	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("geocode: decode response: %w", err)
	}
	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return "", ErrNoResult
	default:
		return "", fmt.Errorf("geocode: api status %s: %s", body.Status, body.ErrorMessage)
	}
	for _, r := range body.Results {
		for _, c := range r.AddressComponents {
			for _, t := range c.Types {
				if t == "postal_code" {
					return c.LongName, nil
				}
			}
		}
	}
	return "", ErrNoResult
}

var _ Geocoder = (*Google)(nil)
