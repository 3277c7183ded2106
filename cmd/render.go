package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/boardwalk/internal/config"
	"github.com/zjrosen/boardwalk/internal/registry"
	"github.com/zjrosen/boardwalk/internal/store"
)

var renderCmd = &cobra.Command{
	Use:   "render <fen>",
	Short: "Render one position to a file",
	Long: `Render a FEN position once and print where the image was written.

Without --out the board stays in a fresh temporary directory. The extension
of --out is replaced to match the format produced (.png or .svg).

Example:
  boardwalk render "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
  boardwalk render "8/8/8/8/8/8/8/K6k w - - 0 1" --size 200 --out endgame.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := renderOnce(cmd.Context(), cfg.Render, args[0], renderSize, renderOut)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var (
	renderSize int
	renderOut  string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().IntVarP(&renderSize, "size", "s", 400, "board edge length in pixels")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "copy the image to this path")
}

// renderOnce creates the board through a throwaway registry and returns the
// path of the written image.
func renderOnce(ctx context.Context, rc config.RenderConfig, fen string, size int, out string) (string, error) {
	renderer, err := newRenderer(rc, nil)
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "boardwalk-render-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}

	reg := registry.New(renderer, store.NewFileStore(dir))
	defer reg.Close()

	res := reg.Create(ctx, fen, size)
	if !res.OK() {
		_ = os.RemoveAll(dir)
		return "", errors.New(res.Failure())
	}
	if out == "" {
		return res.Resource.FilePath, nil
	}

	defer func() { _ = os.RemoveAll(dir) }()
	target := swapExt(out, filepath.Ext(res.Resource.FilePath))
	if err := copyFile(res.Resource.FilePath, target); err != nil {
		return "", err
	}
	return target, nil
}

func swapExt(path, ext string) string {
	return path[:len(path)-len(filepath.Ext(path))] + ext
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: path produced by the store
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	o, err := os.Create(dst) //nolint:gosec // G304: user-chosen output path
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(o, in); err != nil {
		_ = o.Close()
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return o.Close()
}
