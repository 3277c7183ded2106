// Package relay posts messages to a Mattermost channel over the REST v4 API.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/boardwalk/internal/cachemanager"
	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/metrics"
)

// ErrDisabled is returned by New when no server URL is configured.
var ErrDisabled = errors.New("relay disabled: no url configured")

// Config configures a Client.
type Config struct {
	URL     string
	Token   string
	Team    string
	Channel string
}

// Post is a created message.
type Post struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Message   string `json:"message"`
}

// Client posts to channels of one team. Channel ids are resolved by name
// once and cached.
type Client struct {
	baseURL        string
	token          string
	team           string
	defaultChannel string
	httpClient     *http.Client
	channels       *cachemanager.ReadThroughCache[string, string, string]
	metrics        *metrics.Metrics
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

// New creates a Client, or returns ErrDisabled when cfg.URL is empty.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrDisabled
	}
	if cfg.Team == "" {
		return nil, fmt.Errorf("relay team is required")
	}
	base := strings.TrimRight(cfg.URL, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	c := &Client{
		baseURL:        base,
		token:          cfg.Token,
		team:           cfg.Team,
		defaultChannel: cfg.Channel,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	ids := cachemanager.NewInMemoryCacheManager[string, string]("relay-channels", time.Hour, cachemanager.DefaultCleanupInterval)
	c.channels = cachemanager.NewReadThroughCache[string, string, string](ids, c.lookupChannel, false)
	return c, nil
}

// DefaultChannel is used when Post is given no channel.
func (c *Client) DefaultChannel() string {
	return c.defaultChannel
}

// Post sends message to channel, or to the default channel when empty.
func (c *Client) Post(ctx context.Context, channel, message string) (Post, error) {
	if channel == "" {
		channel = c.defaultChannel
	}
	if channel == "" {
		return Post{}, fmt.Errorf("no channel given and no default configured")
	}
	if strings.TrimSpace(message) == "" {
		return Post{}, fmt.Errorf("message is empty")
	}

	channelID, err := c.channels.Get(ctx, channel, channel, time.Hour)
	if err != nil {
		return Post{}, err
	}

	payload, err := json.Marshal(map[string]string{"channel_id": channelID, "message": message})
	if err != nil {
		return Post{}, fmt.Errorf("encoding post: %w", err)
	}

	var post Post
	if err := c.do(ctx, http.MethodPost, "/api/v4/posts", bytes.NewReader(payload), http.StatusCreated, &post); err != nil {
		return Post{}, fmt.Errorf("creating post in %s: %w", channel, err)
	}
	log.Info(log.CatTools, "posted message", "channel", channel, "post", post.ID)
	return post, nil
}

func (c *Client) lookupChannel(ctx context.Context, name string) (string, error) {
	path := fmt.Sprintf("/api/v4/teams/name/%s/channels/name/%s", url.PathEscape(c.team), url.PathEscape(name))
	var ch struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &ch); err != nil {
		return "", fmt.Errorf("resolving channel %s in team %s: %w", name, c.team, err)
	}
	if ch.ID == "" {
		return "", fmt.Errorf("resolving channel %s in team %s: empty id", name, c.team)
	}
	return ch.ID, nil
}

// apiError is the Mattermost error body.
type apiError struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("relay", "error")
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.ObserveUpstream("relay", strconv.Itoa(resp.StatusCode))

	if resp.StatusCode != want {
		var ae apiError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &ae) == nil && ae.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, ae.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
