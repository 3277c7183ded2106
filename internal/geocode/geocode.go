// Package geocode resolves place names to coordinates with the maps.co
// search API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zjrosen/boardwalk/internal/cachemanager"
	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/metrics"
)

const (
	DefaultBaseURL           = "https://geocode.maps.co"
	DefaultRequestsPerSecond = 1.0
	DefaultCacheTTL          = time.Hour
)

// Status values reported in Result.Status.
const (
	StatusSuccess   = "success"
	StatusNoResults = "no results found"
)

// Result is the outcome of a lookup. Latitude and Longitude are nil unless
// Status is StatusSuccess.
type Result struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Status    string   `json:"status"`
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	CacheTTL          time.Duration
}

// Client looks up coordinates. Requests are paced to the provider's limit
// and successful answers are cached per place.
type Client struct {
	baseURL    string
	apiKey     string
	ttl        time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cachemanager.ReadThroughCache[string, Result, string]
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics counts upstream requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		ttl:        cfg.CacheTTL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	store := cachemanager.NewInMemoryCacheManager[string, Result]("geocode", cfg.CacheTTL, cachemanager.DefaultCleanupInterval)
	c.cache = cachemanager.NewReadThroughCache[string, Result, string](store, c.fetch, cfg.CacheTTL < 0).
		StoreIf(func(r Result) bool { return r.Status == StatusSuccess })
	return c
}

// Coordinates returns the first match for place. Failures are reported both
// in Result.Status and as the error.
func (c *Client) Coordinates(ctx context.Context, place string) (Result, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return Result{Status: "Request error: empty place name"}, fmt.Errorf("empty place name")
	}
	return c.cache.Get(ctx, strings.ToLower(place), place, c.ttl)
}

type searchHit struct {
	Lat float64 `json:"lat,string"`
	Lon float64 `json:"lon,string"`
}

func (c *Client) fetch(ctx context.Context, place string) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return requestError(fmt.Errorf("rate limiter: %w", err))
	}

	q := url.Values{}
	q.Set("q", place)
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return requestError(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("geocode", "error")
		return requestError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.ObserveUpstream("geocode", strconv.Itoa(resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return requestError(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var hits []searchHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		status := fmt.Sprintf("JSON decode error: %v", err)
		return Result{Status: status}, fmt.Errorf("decoding geocode response: %w", err)
	}
	if len(hits) == 0 {
		log.Debug(log.CatTools, "geocode found nothing", "place", place)
		return Result{Status: StatusNoResults}, nil
	}

	lat, lon := hits[0].Lat, hits[0].Lon
	log.Debug(log.CatTools, "geocoded place", "place", place, "lat", lat, "lon", lon)
	return Result{Latitude: &lat, Longitude: &lon, Status: StatusSuccess}, nil
}

func requestError(err error) (Result, error) {
	return Result{Status: fmt.Sprintf("Request error: %v", err)}, fmt.Errorf("geocode request: %w", err)
}
