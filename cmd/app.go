package cmd

import (
	"context"
	"errors"
	"fmt"
	"image/color"

	"github.com/spf13/afero"

	"github.com/zjrosen/boardwalk/internal/config"
	"github.com/zjrosen/boardwalk/internal/geocode"
	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/mcp"
	"github.com/zjrosen/boardwalk/internal/metrics"
	"github.com/zjrosen/boardwalk/internal/paths"
	"github.com/zjrosen/boardwalk/internal/registry"
	"github.com/zjrosen/boardwalk/internal/relay"
	"github.com/zjrosen/boardwalk/internal/render"
	"github.com/zjrosen/boardwalk/internal/store"
	"github.com/zjrosen/boardwalk/internal/tracing"
	"github.com/zjrosen/boardwalk/internal/weather"
)

// app is a fully wired server.
type app struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	tracing  *tracing.Provider
	registry *registry.Registry
	server   *mcp.BoardServer

	// boardsDir is empty for the object store backend.
	boardsDir string
}

func newApp(cfg config.Config) (*app, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m := metrics.New()

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("creating tracer: %w", err)
	}

	renderer, err := newRenderer(cfg.Render, m)
	if err != nil {
		return nil, err
	}

	st, dir, err := newStore(cfg.Boards)
	if err != nil {
		return nil, err
	}

	reg := registry.New(renderer, st, registry.WithMetrics(m))

	name := cfg.Server.Name
	if name == "" {
		name = "boardwalk"
	}
	srv := mcp.NewBoardServer(name, version, reg, cfg.Boards.DefaultSize,
		mcp.WithTracer(tp.Tracer()),
		mcp.WithMetrics(m),
	)

	tb, err := newToolbox(cfg, m)
	if err != nil {
		reg.Close()
		return nil, err
	}
	mcp.RegisterToolbox(srv.Server, tb)
	mcp.RegisterPrompts(srv.Server)

	log.Info(log.CatConfig, "server wired",
		"rasterizer", renderer.Rasterizer().Name(),
		"backend", cfg.Boards.Backend,
		"tracing", tp.Enabled())

	return &app{
		cfg:       cfg,
		metrics:   m,
		tracing:   tp,
		registry:  reg,
		server:    srv,
		boardsDir: dir,
	}, nil
}

// Close stops event delivery and flushes spans.
func (a *app) Close(ctx context.Context) error {
	a.registry.Close()
	if err := a.tracing.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down tracer: %w", err)
	}
	return nil
}

func newRenderer(rc config.RenderConfig, m *metrics.Metrics) (*render.Renderer, error) {
	kind := rc.Rasterizer
	if kind == "" {
		kind = render.KindAuto
	}
	rasterizer, err := render.NewRasterizer(kind, rc.RsvgPath)
	if err != nil {
		return nil, fmt.Errorf("creating rasterizer: %w", err)
	}

	opts := []render.Option{render.WithMetrics(m)}
	if rc.MaxSize > 0 {
		opts = append(opts, render.WithMaxSize(rc.MaxSize))
	}
	if rc.LightSquare != "" || rc.DarkSquare != "" {
		light, dark, err := squareColors(rc)
		if err != nil {
			return nil, err
		}
		opts = append(opts, render.WithSquareColors(light, dark))
	}
	return render.New(rasterizer, opts...), nil
}

func squareColors(rc config.RenderConfig) (color.Color, color.Color, error) {
	defaults := config.Defaults().Render
	lightHex, darkHex := rc.LightSquare, rc.DarkSquare
	if lightHex == "" {
		lightHex = defaults.LightSquare
	}
	if darkHex == "" {
		darkHex = defaults.DarkSquare
	}
	light, err := render.ParseHexColor(lightHex)
	if err != nil {
		return nil, nil, fmt.Errorf("render.light_square: %w", err)
	}
	dark, err := render.ParseHexColor(darkHex)
	if err != nil {
		return nil, nil, fmt.Errorf("render.dark_square: %w", err)
	}
	return light, dark, nil
}

// newStore returns the configured store and, for the file backend, its
// absolute directory.
func newStore(bc config.BoardsConfig) (store.Store, string, error) {
	if bc.Backend == config.BackendS3 {
		s3 := bc.S3
		st, err := store.NewObjectStore(store.S3Config{
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
			Region:    s3.Region,
		})
		if err != nil {
			return nil, "", fmt.Errorf("creating object store: %w", err)
		}
		return st, "", nil
	}

	dir, err := paths.ResolveBoardsDir(bc.Dir)
	if err != nil {
		return nil, "", err
	}
	if err := paths.EnsureDir(dir); err != nil {
		return nil, "", err
	}
	return store.NewFileStore(dir), dir, nil
}

func newToolbox(cfg config.Config, m *metrics.Metrics) (mcp.Toolbox, error) {
	tb := mcp.Toolbox{
		Fs: afero.NewOsFs(),
		Geocode: geocode.New(geocode.Config{
			BaseURL:           cfg.Geocode.BaseURL,
			APIKey:            cfg.Geocode.APIKey,
			RequestsPerSecond: cfg.Geocode.RequestsPerSecond,
			CacheTTL:          cfg.Geocode.CacheTTL,
		}, geocode.WithMetrics(m)),
		Weather: weather.New(weather.Config{
			BaseURL:  cfg.Weather.BaseURL,
			CacheTTL: cfg.Weather.CacheTTL,
		}, weather.WithMetrics(m)),
	}

	rc, err := relay.New(relay.Config{
		URL:     cfg.Relay.URL,
		Token:   cfg.Relay.Token,
		Team:    cfg.Relay.Team,
		Channel: cfg.Relay.Channel,
	}, relay.WithMetrics(m))
	switch {
	case errors.Is(err, relay.ErrDisabled):
		log.Debug(log.CatConfig, "relay disabled")
	case err != nil:
		return mcp.Toolbox{}, fmt.Errorf("creating relay: %w", err)
	default:
		tb.Relay = rc
	}
	return tb, nil
}
