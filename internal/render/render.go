// Package render draws chess positions as square board images.
//
// A Renderer always draws the board as SVG first. When its Rasterizer
// reports itself available the drawing is converted to PNG, otherwise the
// SVG is returned as is. Callers branch on RenderedImage.Format.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/notnil/chess/image"

	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/metrics"
	"github.com/zjrosen/boardwalk/internal/position"
)

// Format tags the encoding of a rendered image.
type Format int

const (
	Raster Format = iota // PNG
	Vector               // SVG
)

func (f Format) String() string {
	switch f {
	case Raster:
		return "raster"
	case Vector:
		return "vector"
	default:
		return "unknown"
	}
}

// MimeType returns the media type of images in this format.
func (f Format) MimeType() string {
	if f == Raster {
		return "image/png"
	}
	return "image/svg+xml"
}

// Extension returns the file extension, including the dot.
func (f Format) Extension() string {
	if f == Raster {
		return ".png"
	}
	return ".svg"
}

// RenderedImage is an encoded board image.
type RenderedImage struct {
	Data   []byte
	Format Format
	Width  int
	Height int
}

var (
	defaultLight = color.RGBA{R: 0xf0, G: 0xd9, B: 0xb5, A: 0xff}
	defaultDark  = color.RGBA{R: 0xb5, G: 0x88, B: 0x63, A: 0xff}
)

// DefaultMaxSize is the size above which a render is logged as suspicious.
const DefaultMaxSize = 4096

// Renderer turns positions into images.
type Renderer struct {
	rasterizer Rasterizer
	light      color.Color
	dark       color.Color
	maxSize    int
	metrics    *metrics.Metrics
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSquareColors overrides the light and dark square colors.
func WithSquareColors(light, dark color.Color) Option {
	return func(r *Renderer) {
		r.light = light
		r.dark = dark
	}
}

// WithMaxSize sets the size above which renders are logged as misuse.
func WithMaxSize(n int) Option {
	return func(r *Renderer) {
		r.maxSize = n
	}
}

// WithMetrics records render durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Renderer) {
		r.metrics = m
	}
}

// New creates a Renderer. A nil rasterizer means vector output only.
func New(rasterizer Rasterizer, opts ...Option) *Renderer {
	if rasterizer == nil {
		rasterizer = NoRasterizer{}
	}
	r := &Renderer{
		rasterizer: rasterizer,
		light:      defaultLight,
		dark:       defaultDark,
		maxSize:    DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rasterizer returns the backend the renderer consults.
func (r *Renderer) Rasterizer() Rasterizer {
	return r.rasterizer
}

// Render draws pos as a size x size image with white at the bottom.
func (r *Renderer) Render(ctx context.Context, pos *position.Position, size int) (*RenderedImage, error) {
	if pos == nil {
		return nil, &RenderError{Format: Vector, Size: size, Err: fmt.Errorf("no position")}
	}
	if size <= 0 {
		return nil, &RenderError{Format: Vector, Size: size, Err: fmt.Errorf("size must be positive")}
	}
	if r.maxSize > 0 && size > r.maxSize {
		log.Warn(log.CatRender, "render size above configured maximum", "size", size, "max", r.maxSize)
	}

	start := time.Now()

	drawing, err := drawBoard(pos, r.light, r.dark, size)
	if err != nil {
		return nil, &RenderError{Format: Vector, Size: size, Err: err}
	}

	img := &RenderedImage{Data: drawing.SVG, Format: Vector, Width: size, Height: size}
	if r.rasterizer.Available() {
		png, err := r.rasterizer.Rasterize(ctx, drawing, size)
		if err != nil {
			return nil, &RenderError{Format: Raster, Size: size, Err: fmt.Errorf("%s: %w", r.rasterizer.Name(), err)}
		}
		img = &RenderedImage{Data: png, Format: Raster, Width: size, Height: size}
	} else {
		log.Debug(log.CatRender, "no rasterizer available, returning vector", "rasterizer", r.rasterizer.Name())
	}

	r.metrics.ObserveRender(img.Format.String(), time.Since(start))
	log.Debug(log.CatRender, "rendered board",
		"format", img.Format, "size", size, "bytes", len(img.Data), "fen", pos.String())
	return img, nil
}

// drawBoard draws pos as SVG and prepares it for output at size pixels.
func drawBoard(pos *position.Position, light, dark color.Color, size int) (*Drawing, error) {
	var raw bytes.Buffer
	if err := image.SVG(&raw, pos.Board(), image.SquareColors(light, dark)); err != nil {
		return nil, fmt.Errorf("drawing board: %w", err)
	}
	return prepare(raw.Bytes(), size)
}
