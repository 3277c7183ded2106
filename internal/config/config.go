// Package config provides configuration types and defaults for boardwalk.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/render"
	"github.com/zjrosen/boardwalk/internal/tracing"
)

// Config holds all configuration options for boardwalk.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Boards  BoardsConfig   `mapstructure:"boards"`
	Render  RenderConfig   `mapstructure:"render"`
	Geocode GeocodeConfig  `mapstructure:"geocode"`
	Weather WeatherConfig  `mapstructure:"weather"`
	Relay   RelayConfig    `mapstructure:"relay"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// ServerConfig selects the MCP transport.
type ServerConfig struct {
	Transport string `mapstructure:"transport"` // "stdio" (default) or "http"
	Addr      string `mapstructure:"addr"`      // listen address for http
	Name      string `mapstructure:"name"`      // server name reported to clients
}

// BoardsConfig holds where rendered boards are kept.
type BoardsConfig struct {
	Dir         string   `mapstructure:"dir"`
	Backend     string   `mapstructure:"backend"` // "file" (default) or "s3"
	DefaultSize int      `mapstructure:"default_size"`
	Watch       bool     `mapstructure:"watch"` // report files removed from dir
	S3          S3Config `mapstructure:"s3"`
}

// S3Config configures the object store backend.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// RenderConfig controls how boards are drawn.
type RenderConfig struct {
	// Rasterizer is "auto" (default), "native", "command" or "none".
	// "none" always produces SVG.
	Rasterizer  string `mapstructure:"rasterizer"`
	RsvgPath    string `mapstructure:"rsvg_path"`
	MaxSize     int    `mapstructure:"max_size"` // larger requests are logged, not refused
	LightSquare string `mapstructure:"light_square"`
	DarkSquare  string `mapstructure:"dark_square"`
}

// GeocodeConfig configures the place lookup client.
type GeocodeConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// WeatherConfig configures the current weather client.
type WeatherConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RelayConfig configures posting to a Mattermost team. An empty URL
// disables the post_message tool.
type RelayConfig struct {
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Team    string `mapstructure:"team"`
	Channel string `mapstructure:"channel"`
}

// Enabled reports whether a relay server is configured.
func (r RelayConfig) Enabled() bool {
	return r.URL != ""
}

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	BackendFile = "file"
	BackendS3   = "s3"
)

// DefaultTracesFilePath returns ~/.config/boardwalk/traces/traces.jsonl,
// or an empty string if the home directory is unavailable.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultConfigDir returns ~/.config/boardwalk, or an empty string if the
// home directory is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "boardwalk")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()

	return Config{
		Server: ServerConfig{
			Transport: TransportStdio,
			Addr:      ":8000",
			Name:      "boardwalk",
		},
		Boards: BoardsConfig{
			Dir:         "boards",
			Backend:     BackendFile,
			DefaultSize: 400,
			Watch:       true,
			S3: S3Config{
				Prefix: "boards/",
				UseSSL: true,
			},
		},
		Render: RenderConfig{
			Rasterizer:  render.KindAuto,
			RsvgPath:    render.DefaultCommand,
			MaxSize:     render.DefaultMaxSize,
			LightSquare: "#f0d9b5",
			DarkSquare:  "#b58863",
		},
		Geocode: GeocodeConfig{
			BaseURL:           "https://geocode.maps.co",
			RequestsPerSecond: 1,
			CacheTTL:          time.Hour,
		},
		Weather: WeatherConfig{
			BaseURL:  "https://api.open-meteo.com",
			CacheTTL: 10 * time.Minute,
		},
		Tracing: tr,
	}
}

// Validate checks cfg for errors. Empty optional values are valid and fall
// back to defaults at runtime.
func Validate(cfg Config) error {
	if err := ValidateServer(cfg.Server); err != nil {
		return err
	}
	if err := ValidateBoards(cfg.Boards); err != nil {
		return err
	}
	if err := ValidateRender(cfg.Render); err != nil {
		return err
	}
	if cfg.Geocode.RequestsPerSecond < 0 {
		return fmt.Errorf("geocode.requests_per_second must not be negative, got %v", cfg.Geocode.RequestsPerSecond)
	}
	if err := ValidateRelay(cfg.Relay); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateServer checks the transport settings.
func ValidateServer(s ServerConfig) error {
	switch s.Transport {
	case "", TransportStdio:
	case TransportHTTP:
		if s.Addr == "" {
			return fmt.Errorf("server.addr is required when transport is \"http\"")
		}
	default:
		return fmt.Errorf("server.transport must be \"stdio\" or \"http\", got %q", s.Transport)
	}
	return nil
}

// ValidateBoards checks storage settings.
func ValidateBoards(b BoardsConfig) error {
	if b.DefaultSize < 0 {
		return fmt.Errorf("boards.default_size must be positive, got %d", b.DefaultSize)
	}
	switch b.Backend {
	case "", BackendFile:
	case BackendS3:
		if b.S3.Bucket == "" {
			return fmt.Errorf("boards.s3.bucket is required when backend is \"s3\"")
		}
		if b.S3.Endpoint == "" {
			return fmt.Errorf("boards.s3.endpoint is required when backend is \"s3\"")
		}
	default:
		return fmt.Errorf("boards.backend must be \"file\" or \"s3\", got %q", b.Backend)
	}
	return nil
}

// ValidateRender checks rasterizer choice and square colors.
func ValidateRender(r RenderConfig) error {
	switch r.Rasterizer {
	case "", render.KindAuto, render.KindNative, render.KindCommand, render.KindNone:
	default:
		return fmt.Errorf("render.rasterizer must be \"auto\", \"native\", \"command\", or \"none\", got %q", r.Rasterizer)
	}
	if r.MaxSize < 0 {
		return fmt.Errorf("render.max_size must not be negative, got %d", r.MaxSize)
	}
	for key, value := range map[string]string{"light_square": r.LightSquare, "dark_square": r.DarkSquare} {
		if value == "" {
			continue
		}
		if _, err := render.ParseHexColor(value); err != nil {
			return fmt.Errorf("render.%s: %w", key, err)
		}
	}
	return nil
}

// ValidateRelay requires a team and token once a server URL is set.
func ValidateRelay(r RelayConfig) error {
	if !r.Enabled() {
		return nil
	}
	raw := r.URL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if u, err := url.Parse(raw); err != nil || u.Host == "" {
		return fmt.Errorf("relay.url is not a valid URL: %q", r.URL)
	}
	if r.Team == "" {
		return fmt.Errorf("relay.team is required when relay.url is set")
	}
	if r.Token == "" {
		return fmt.Errorf("relay.token is required when relay.url is set")
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tr tracing.Config) error {
	if tr.SampleRate < 0.0 || tr.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tr.SampleRate)
	}

	if tr.Exporter != "" {
		switch tr.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tr.Exporter)
		}
	}

	// path requirements only matter once tracing is on
	if tr.Enabled {
		if tr.Exporter == "file" && tr.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tr.Exporter == "otlp" && tr.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Boardwalk Configuration

server:
  transport: stdio        # "stdio" or "http"
  addr: ":8000"           # listen address when transport is http
  name: boardwalk

boards:
  dir: boards             # where rendered boards are written
  backend: file           # "file" or "s3"
  default_size: 400       # pixels, used when create_board gets no size
  watch: true             # tell clients when board files vanish from dir
  # s3:
  #   endpoint: localhost:9000
  #   access_key: ""
  #   secret_key: ""
  #   bucket: boards
  #   prefix: boards/
  #   use_ssl: true
  #   region: ""

render:
  rasterizer: auto        # "auto", "native", "command" or "none" (always SVG)
  rsvg_path: rsvg-convert # executable for the command rasterizer
  max_size: 4096          # larger boards are still drawn, with a warning
  light_square: "#f0d9b5"
  dark_square: "#b58863"

geocode:
  base_url: https://geocode.maps.co
  # api_key: ""           # or set BOARDWALK_GEOCODE_API_KEY
  requests_per_second: 1
  cache_ttl: 1h

weather:
  base_url: https://api.open-meteo.com
  cache_ttl: 10m

# Mattermost relay for the post_message tool (disabled while url is empty)
# relay:
#   url: chat.example.com
#   token: ""             # or set BOARDWALK_RELAY_TOKEN
#   team: my-team
#   channel: town-square

tracing:
  enabled: false
  exporter: file          # "none", "file", "stdout" (written to stderr) or "otlp"
  # file_path: ~/.config/boardwalk/traces/traces.jsonl
  otlp_endpoint: localhost:4317
  sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file with default settings.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
