package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/boardwalk/internal/tracing"
)

func TestDefaults_AreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestDefaults_Values(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, TransportStdio, cfg.Server.Transport)
	require.Equal(t, "boards", cfg.Boards.Dir)
	require.Equal(t, 400, cfg.Boards.DefaultSize)
	require.Equal(t, BackendFile, cfg.Boards.Backend)
	require.Equal(t, "auto", cfg.Render.Rasterizer)
	require.Equal(t, time.Hour, cfg.Geocode.CacheTTL)
	require.Equal(t, 10*time.Minute, cfg.Weather.CacheTTL)
	require.False(t, cfg.Relay.Enabled())
	require.False(t, cfg.Tracing.Enabled)
}

func TestValidate_EmptyConfigIsValid(t *testing.T) {
	require.NoError(t, Validate(Config{}), "empty values fall back to defaults")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad transport", func(c *Config) { c.Server.Transport = "grpc" }, "server.transport"},
		{"http without addr", func(c *Config) { c.Server.Transport = TransportHTTP; c.Server.Addr = "" }, "server.addr is required"},
		{"negative size", func(c *Config) { c.Boards.DefaultSize = -1 }, "boards.default_size"},
		{"bad backend", func(c *Config) { c.Boards.Backend = "ftp" }, "boards.backend"},
		{"s3 without bucket", func(c *Config) {
			c.Boards.Backend = BackendS3
			c.Boards.S3.Endpoint = "localhost:9000"
		}, "boards.s3.bucket is required"},
		{"s3 without endpoint", func(c *Config) {
			c.Boards.Backend = BackendS3
			c.Boards.S3.Bucket = "boards"
		}, "boards.s3.endpoint is required"},
		{"bad rasterizer", func(c *Config) { c.Render.Rasterizer = "imagemagick" }, "render.rasterizer"},
		{"bad square color", func(c *Config) { c.Render.LightSquare = "beige" }, "render.light_square"},
		{"negative rps", func(c *Config) { c.Geocode.RequestsPerSecond = -1 }, "geocode.requests_per_second"},
		{"relay without team", func(c *Config) { c.Relay = RelayConfig{URL: "chat.example.com", Token: "t"} }, "relay.team is required"},
		{"relay without token", func(c *Config) { c.Relay = RelayConfig{URL: "chat.example.com", Team: "x"} }, "relay.token is required"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "tracing.sample_rate"},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, "tracing.exporter"},
		{"file exporter without path", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "file"
			c.Tracing.FilePath = ""
		}, "tracing.file_path is required"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OTLPEndpoint = ""
		}, "tracing.otlp_endpoint is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateRelay_Valid(t *testing.T) {
	require.NoError(t, ValidateRelay(RelayConfig{}))
	require.NoError(t, ValidateRelay(RelayConfig{URL: "chat.example.com", Token: "t", Team: "x"}))
	require.NoError(t, ValidateRelay(RelayConfig{URL: "http://localhost:8065", Token: "t", Team: "x"}))
}

func TestValidateTracing_DisabledSkipsPathChecks(t *testing.T) {
	err := ValidateTracing(tracing.Config{Enabled: false, Exporter: "file", SampleRate: 1})
	require.NoError(t, err)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(stringsReader(DefaultConfigTemplate())))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	want := Defaults()
	require.Equal(t, want.Server, cfg.Server)
	require.Equal(t, want.Boards.Dir, cfg.Boards.Dir)
	require.Equal(t, want.Boards.DefaultSize, cfg.Boards.DefaultSize)
	require.Equal(t, want.Boards.Watch, cfg.Boards.Watch)
	require.Equal(t, want.Render, cfg.Render)
	require.Equal(t, want.Geocode, cfg.Geocode)
	require.Equal(t, want.Weather, cfg.Weather)
	require.Equal(t, want.Tracing.Exporter, cfg.Tracing.Exporter)
	require.Equal(t, want.Tracing.SampleRate, cfg.Tracing.SampleRate)
	require.NoError(t, Validate(cfg))
}

func TestDefaultTracesFilePath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	require.Equal(t, filepath.Join("/home/tester", ".config", "boardwalk", "traces", "traces.jsonl"), DefaultTracesFilePath())
}
