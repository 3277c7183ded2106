package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/boardwalk/internal/config"
	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/watcher"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Run the MCP server over stdio (the default, for clients that launch
boardwalk as a subprocess) or over HTTP.

Example:
  boardwalk serve                          # stdio
  boardwalk serve --transport http         # POST /mcp on :8000
  boardwalk serve --transport http --addr localhost:9000`,
	RunE: runServe,
}

var (
	serveTransport string
	serveAddr      string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveTransport, "transport", "t", "", "stdio or http (overrides config)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveTransport != "" {
		cfg.Server.Transport = serveTransport
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), nil)
}

// serve runs until ctx is done or the transport ends. For http, ready (if
// not nil) receives the bound address once the listener is up.
func serve(ctx context.Context, cfg config.Config, stdin io.Reader, stdout io.Writer, ready chan<- string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			log.ErrorErr(log.CatConfig, "Error during shutdown", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Boards.Watch && a.boardsDir != "" {
		stopWatch, err := watchBoards(ctx, a)
		if err != nil {
			// removals are still detected lazily on read
			log.Warn(log.CatWatcher, "board watcher unavailable", "error", err)
		} else {
			defer stopWatch()
		}
	}

	if cfg.Server.Transport == config.TransportHTTP {
		return serveHTTP(ctx, a, cfg.Server.Addr, ready)
	}
	return serveStdio(ctx, a, stdin, stdout)
}

func watchBoards(ctx context.Context, a *app) (func(), error) {
	w, err := watcher.New(watcher.DefaultConfig(a.boardsDir))
	if err != nil {
		return nil, err
	}
	removed, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return nil, err
	}
	go a.server.WatchRemovals(ctx, removed)
	return func() { _ = w.Stop() }, nil
}

func serveStdio(ctx context.Context, a *app, stdin io.Reader, stdout io.Writer) error {
	go a.server.Listen(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(stdin, stdout)
	}()

	log.Info(log.CatMCP, "serving over stdio")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	case <-ctx.Done():
		// the reader may be blocked on stdin; stop handling and leave
		a.server.Stop()
		return nil
	}
}

func serveHTTP(ctx context.Context, a *app, addr string, ready chan<- string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           a.server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	bound := ln.Addr().String()
	log.Info(log.CatHTTP, "serving over http", "addr", bound)
	fmt.Fprintf(os.Stderr, "boardwalk listening on http://%s/mcp\n", bound)
	if ready != nil {
		ready <- bound
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
