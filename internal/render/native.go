package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/position"
)

// NativeRasterizer rasterizes in-process with oksvg and draws labels with
// the Go Regular font.
type NativeRasterizer struct {
	once      sync.Once
	available bool
	font      *opentype.Font
}

// NewNativeRasterizer returns a rasterizer that checks itself on first use.
func NewNativeRasterizer() *NativeRasterizer {
	return &NativeRasterizer{}
}

func (n *NativeRasterizer) Name() string { return KindNative }

// checkSize is the edge of the board drawn by the availability check.
const checkSize = 180

// Available runs a one-time check: the label font must parse and the
// starting position must rasterize with an empty light square in its own
// colour and the black a7 pawn drawn on its square.
func (n *NativeRasterizer) Available() bool {
	n.once.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			log.ErrorErr(log.CatRender, "native rasterizer font unavailable", err)
			return
		}
		n.font = f

		n.available = n.selfCheck()
		log.Debug(log.CatRender, "native rasterizer checked", "available", n.available)
	})
	return n.available
}

func (n *NativeRasterizer) selfCheck() bool {
	pos, err := position.Parse(position.StartingPosition)
	if err != nil {
		log.ErrorErr(log.CatRender, "native rasterizer check position", err)
		return false
	}
	d, err := drawBoard(pos, defaultLight, defaultDark, checkSize)
	if err != nil {
		log.ErrorErr(log.CatRender, "native rasterizer check drawing", err)
		return false
	}
	img, err := n.draw(d, checkSize)
	if err != nil {
		log.ErrorErr(log.CatRender, "native rasterizer check failed", err)
		return false
	}

	square := d.ViewBox / 8
	scale := checkSize / d.ViewBox
	at := func(file, rank, px, py float64) color.Color {
		return img.At(int((file*square+px)*scale), int(((8-rank)*square+py)*scale))
	}

	// a4 is empty and light; the a7 pawn body sits low in its square
	if !sameColor(at(0, 4, square/2, square/2), defaultLight) {
		log.Warn(log.CatRender, "native rasterizer drew the wrong square colour")
		return false
	}
	if !sameColor(at(0, 7, square*22/45, square*34/45), color.Black) {
		log.Warn(log.CatRender, "native rasterizer did not draw the a7 pawn")
		return false
	}
	return true
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	near := func(p, q uint32) bool {
		p, q = p>>8, q>>8
		return p+2 >= q && q+2 >= p
	}
	return near(ar, br) && near(ag, bg) && near(ab, bb)
}

func (n *NativeRasterizer) Rasterize(ctx context.Context, d *Drawing, size int) ([]byte, error) {
	if !n.Available() {
		return nil, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := n.draw(d, size)
	if err != nil {
		return nil, err
	}
	if err := n.drawLabels(img, d, size); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

func (n *NativeRasterizer) draw(d *Drawing, size int) (img *image.RGBA, err error) {
	// oksvg panics on some malformed paths
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rasterizing: %v", r)
		}
	}()

	icon, err := oksvg.ReadIconStream(bytes.NewReader(d.Flat), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("reading svg: %w", err)
	}
	icon.ViewBox.X, icon.ViewBox.Y = 0, 0
	icon.ViewBox.W, icon.ViewBox.H = d.ViewBox, d.ViewBox
	icon.SetTarget(0, 0, float64(size), float64(size))

	img = image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1)
	return img, nil
}

func (n *NativeRasterizer) drawLabels(img *image.RGBA, d *Drawing, size int) error {
	if len(d.Labels) == 0 || d.ViewBox <= 0 {
		return nil
	}
	scale := float64(size) / d.ViewBox

	faces := map[float64]font.Face{}
	defer func() {
		for _, f := range faces {
			_ = f.Close()
		}
	}()

	for _, l := range d.Labels {
		px := l.FontSize * scale
		if px < 1 {
			continue
		}
		face, ok := faces[px]
		if !ok {
			var err error
			face, err = opentype.NewFace(n.font, &opentype.FaceOptions{
				Size:    px,
				DPI:     72,
				Hinting: font.HintingFull,
			})
			if err != nil {
				return fmt.Errorf("loading label font: %w", err)
			}
			faces[px] = face
		}

		x := fixed.Int26_6(l.X * scale * 64)
		if l.AnchorEnd {
			x -= font.MeasureString(face, l.Text)
		}
		var fill color.Color = color.Black
		if l.Fill != nil {
			fill = l.Fill
		}
		dr := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(fill),
			Face: face,
			Dot:  fixed.Point26_6{X: x, Y: fixed.Int26_6(l.Y * scale * 64)},
		}
		dr.DrawString(l.Text)
	}
	return nil
}
