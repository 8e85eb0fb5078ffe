// Package nominatim resolves coordinates to US state codes via the OSM
// Nominatim reverse geocoding API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/food-access/svimap/internal/resilience"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "food-desert-analysis.com/1.0 (jfarina3@gatech.edu)"
	defaultReferrer  = "food-desert-analysis.com"
)

// Client reverse-geocodes coordinates.
type Client interface {
	// StateCode returns the two-letter state code containing the point.
	StateCode(ctx context.Context, lat, lon float64) (string, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithBaseURL overrides the Nominatim endpoint, mostly for tests and
// self-hosted instances.
func WithBaseURL(base string) Option {
	return func(c *client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithUserAgent sets the User-Agent and Referer sent with every request.
// Nominatim's usage policy requires an identifying agent.
func WithUserAgent(agent, referrer string) Option {
	return func(c *client) {
		c.userAgent = agent
		c.referrer = referrer
	}
}

// WithRateLimit sets the requests-per-second limit. The public Nominatim
// instance allows at most 1 req/s.
func WithRateLimit(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithRetryConfig overrides the retry behavior for transient failures.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *client) { c.retry = cfg }
}

type client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	referrer   string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a reverse geocoding client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		referrer:   defaultReferrer,
		limiter:    rate.NewLimiter(1, 1),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type reverseResponse struct {
	Address map[string]string `json:"address"`
	Error   string            `json:"error"`
}

func (c *client) StateCode(ctx context.Context, lat, lon float64) (string, error) {
	parsed, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*reverseResponse, error) {
		return c.reverse(ctx, lat, lon)
	})
	if err != nil {
		return "", err
	}
	if parsed.Error != "" {
		return "", eris.Errorf("nominatim: %s", parsed.Error)
	}

	// "US-CO" style ISO3166-2 code; the state is the part after the dash.
	iso := parsed.Address["ISO3166-2-lvl4"]
	if iso == "" {
		return "", eris.New("nominatim: no state-level code in response")
	}
	parts := strings.Split(iso, "-")
	state := parts[len(parts)-1]

	zap.L().Debug("nominatim: resolved state",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.String("state", state),
	)
	return state, nil
}

func (c *client) reverse(ctx context.Context, lat, lon float64) (*reverseResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim: rate limit wait")
	}

	url := fmt.Sprintf("%s/reverse?format=json&lat=%f&lon=%f&zoom=10&addressdetails=1",
		c.baseURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.referrer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: reverse geocode")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("nominatim: reverse geocode returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrap(err, "nominatim: decode response")
	}
	return &parsed, nil
}
