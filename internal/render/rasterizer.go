package render

import (
	"context"
	"errors"
	"fmt"
)

// Rasterizer converts a prepared board drawing to PNG bytes.
// Available must be cheap after its first call; the Renderer asks it on
// every render to choose between raster and vector output.
type Rasterizer interface {
	Name() string
	Available() bool
	Rasterize(ctx context.Context, d *Drawing, size int) ([]byte, error)
}

// ErrUnavailable is returned by rasterizers asked to work while unavailable.
var ErrUnavailable = errors.New("rasterizer unavailable")

// Rasterizer kinds accepted by NewRasterizer.
const (
	KindAuto    = "auto"
	KindNative  = "native"
	KindCommand = "command"
	KindNone    = "none"
)

// NewRasterizer builds the rasterizer named by kind. commandPath is the
// rsvg-convert executable used by the command kind.
func NewRasterizer(kind, commandPath string) (Rasterizer, error) {
	switch kind {
	case KindAuto, "":
		return Chain{NewNativeRasterizer(), NewCommandRasterizer(commandPath)}, nil
	case KindNative:
		return NewNativeRasterizer(), nil
	case KindCommand:
		return NewCommandRasterizer(commandPath), nil
	case KindNone:
		return NoRasterizer{}, nil
	default:
		return nil, fmt.Errorf("unknown rasterizer %q", kind)
	}
}

// NoRasterizer is never available, forcing vector output.
type NoRasterizer struct{}

func (NoRasterizer) Name() string    { return KindNone }
func (NoRasterizer) Available() bool { return false }

func (NoRasterizer) Rasterize(context.Context, *Drawing, int) ([]byte, error) {
	return nil, ErrUnavailable
}

// Chain delegates to the first available rasterizer in order.
type Chain []Rasterizer

func (c Chain) Name() string {
	if r := c.first(); r != nil {
		return r.Name()
	}
	return KindAuto
}

func (c Chain) Available() bool {
	return c.first() != nil
}

func (c Chain) Rasterize(ctx context.Context, d *Drawing, size int) ([]byte, error) {
	r := c.first()
	if r == nil {
		return nil, ErrUnavailable
	}
	return r.Rasterize(ctx, d, size)
}

func (c Chain) first() Rasterizer {
	for _, r := range c {
		if r != nil && r.Available() {
			return r
		}
	}
	return nil
}
