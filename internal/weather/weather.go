// Package weather reports current conditions from the open-meteo API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/boardwalk/internal/cachemanager"
	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/metrics"
)

const (
	DefaultBaseURL  = "https://api.open-meteo.com"
	DefaultCacheTTL = 10 * time.Minute
)

const (
	StatusSuccess            = "success"
	StatusInvalidCoordinates = "Missing or invalid coordinates"
)

// Summary is the current weather at a point. Measurements are nil unless
// Status is StatusSuccess.
type Summary struct {
	Temperature   *float64 `json:"temperature"`
	WindSpeed     *float64 `json:"wind_speed"`
	WindDirection *string  `json:"wind_direction"`
	Status        string   `json:"status"`
}

// Config configures a Client.
type Config struct {
	BaseURL  string
	CacheTTL time.Duration
}

// Client fetches current weather, caching answers per coordinate pair
// rounded to two decimals.
type Client struct {
	baseURL    string
	ttl        time.Duration
	httpClient *http.Client
	cache      *cachemanager.ReadThroughCache[string, Summary, point]
	metrics    *metrics.Metrics
}

type point struct {
	lat, lon float64
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client. Zero config fields take their defaults; a negative
// CacheTTL disables caching.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		ttl:        cfg.CacheTTL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	store := cachemanager.NewInMemoryCacheManager[string, Summary]("weather", cfg.CacheTTL, cachemanager.DefaultCleanupInterval)
	c.cache = cachemanager.NewReadThroughCache[string, Summary, point](store, c.fetch, cfg.CacheTTL < 0).
		StoreIf(func(s Summary) bool { return s.Status == StatusSuccess })
	return c
}

// Current returns the weather at lat, lon. Missing or out of range
// coordinates yield StatusInvalidCoordinates without a request.
func (c *Client) Current(ctx context.Context, lat, lon *float64) (Summary, error) {
	if !validCoordinate(lat, 90) || !validCoordinate(lon, 180) {
		return Summary{Status: StatusInvalidCoordinates}, fmt.Errorf("invalid coordinates")
	}
	key := fmt.Sprintf("%.2f,%.2f", *lat, *lon)
	return c.cache.Get(ctx, key, point{lat: *lat, lon: *lon}, c.ttl)
}

func validCoordinate(v *float64, limit float64) bool {
	return v != nil && !math.IsNaN(*v) && math.Abs(*v) <= limit
}

type forecastResponse struct {
	CurrentWeather *struct {
		Temperature   float64 `json:"temperature"`
		WindSpeed     float64 `json:"windspeed"`
		WindDirection float64 `json:"winddirection"`
	} `json:"current_weather"`
	Reason string `json:"reason"`
}

func (c *Client) fetch(ctx context.Context, p point) (Summary, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(p.lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(p.lon, 'f', -1, 64))
	q.Set("current_weather", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return apiError(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("weather", "error")
		return apiError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.ObserveUpstream("weather", strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiError(err)
	}

	var fr forecastResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		if resp.StatusCode != http.StatusOK {
			return apiError(fmt.Errorf("status %d", resp.StatusCode))
		}
		return apiError(fmt.Errorf("decoding response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		if fr.Reason != "" {
			return apiError(fmt.Errorf("status %d: %s", resp.StatusCode, fr.Reason))
		}
		return apiError(fmt.Errorf("status %d", resp.StatusCode))
	}
	if fr.CurrentWeather == nil {
		return apiError(fmt.Errorf("response has no current weather"))
	}

	cw := fr.CurrentWeather
	dir := DegreesToCompass(cw.WindDirection)
	log.Debug(log.CatTools, "fetched weather", "lat", p.lat, "lon", p.lon, "temperature", cw.Temperature)
	return Summary{
		Temperature:   &cw.Temperature,
		WindSpeed:     &cw.WindSpeed,
		WindDirection: &dir,
		Status:        StatusSuccess,
	}, nil
}

func apiError(err error) (Summary, error) {
	return Summary{Status: fmt.Sprintf("Weather API error: %v", err)}, fmt.Errorf("weather request: %w", err)
}
