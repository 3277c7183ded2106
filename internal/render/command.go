package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/zjrosen/boardwalk/internal/log"
)

// DefaultCommand is the rasterizer executable looked up on PATH.
const DefaultCommand = "rsvg-convert"

// CommandRasterizer shells out to rsvg-convert, which handles the full
// drawing including text.
type CommandRasterizer struct {
	command string

	once sync.Once
	path string
}

// NewCommandRasterizer uses command, or DefaultCommand when empty.
func NewCommandRasterizer(command string) *CommandRasterizer {
	if command == "" {
		command = DefaultCommand
	}
	return &CommandRasterizer{command: command}
}

func (c *CommandRasterizer) Name() string { return KindCommand }

// Available reports whether the executable could be found. The lookup runs once.
func (c *CommandRasterizer) Available() bool {
	c.once.Do(func() {
		path, err := exec.LookPath(c.command)
		if err != nil {
			log.Debug(log.CatRender, "rasterizer command not found", "command", c.command)
			return
		}
		c.path = path
	})
	return c.path != ""
}

func (c *CommandRasterizer) Rasterize(ctx context.Context, d *Drawing, size int) ([]byte, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	px := strconv.Itoa(size)
	cmd := exec.CommandContext(ctx, c.path, "-w", px, "-h", px, "-f", "png") //nolint:gosec // G204: path comes from config
	cmd.Stdin = bytes.NewReader(d.SVG)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.command, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.command, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s produced no output", c.command)
	}
	return stdout.Bytes(), nil
}
