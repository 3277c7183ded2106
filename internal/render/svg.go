package render

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"
)

const svgNamespace = "http://www.w3.org/2000/svg"

// Drawing is a board SVG prepared for output and for rasterization.
type Drawing struct {
	// SVG is a standalone document whose root is size x size pixels.
	SVG []byte
	// Flat is SVG with nested <svg> elements turned into translated groups
	// and text removed, the subset in-process rasterizers understand.
	Flat []byte
	// Labels holds the text removed from Flat, in viewBox coordinates.
	Labels []Label
	// ViewBox is the width and height of the drawing's coordinate space.
	ViewBox float64
}

// Label is a piece of board text such as a rank or file name.
type Label struct {
	X, Y      float64
	FontSize  float64
	AnchorEnd bool
	Fill      color.Color
	Text      string
}

type frame struct {
	name   string // name written for the end tag, "" when skipped
	dx, dy float64
}

// prepare rewrites a raw board SVG: declarations and comments are dropped,
// the root gets the requested pixel size and a viewBox preserving its
// original coordinate space.
func prepare(raw []byte, size int) (*Drawing, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))

	var out, flat bytes.Buffer
	var stack []frame
	var labels []Label
	var label *Label
	viewBox := 0.0

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing board svg: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := qualified(t.Name)
			parent := frame{}
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}

			switch {
			case len(stack) == 0:
				if t.Name.Local != "svg" {
					return nil, fmt.Errorf("parsing board svg: root element is %q", name)
				}
				w, h := attrFloat(t.Attr, "width"), attrFloat(t.Attr, "height")
				if w <= 0 || h <= 0 {
					return nil, fmt.Errorf("parsing board svg: root has no size")
				}
				viewBox = w
				attrs := []xml.Attr{
					{Name: xml.Name{Local: "xmlns"}, Value: svgNamespace},
					{Name: xml.Name{Local: "width"}, Value: strconv.Itoa(size)},
					{Name: xml.Name{Local: "height"}, Value: strconv.Itoa(size)},
					{Name: xml.Name{Local: "viewBox"}, Value: fmt.Sprintf("0 0 %s %s", ftoa(w), ftoa(h))},
				}
				attrs = append(attrs, normalizeColors(without(t.Attr, "width", "height", "viewBox", "xmlns"))...)
				writeStart(&out, name, attrs)
				writeStart(&flat, name, attrs)
				stack = append(stack, frame{name: name})

			case t.Name.Local == "svg":
				nested := normalizeColors(without(t.Attr, "xmlns", "xmlns:*"))
				writeStart(&out, name, nested)
				dx, dy, transform := nestedTransform(t.Attr)
				group := []xml.Attr{{Name: xml.Name{Local: "transform"}, Value: transform}}
				writeStart(&flat, "g", group)
				stack = append(stack, frame{name: "g", dx: parent.dx + dx, dy: parent.dy + dy})

			case t.Name.Local == "text":
				attrs := normalizeColors(without(t.Attr, "xmlns", "xmlns:*"))
				writeStart(&out, name, attrs)
				label = textLabel(attrs, parent.dx, parent.dy)
				stack = append(stack, frame{dx: parent.dx, dy: parent.dy})

			default:
				attrs := normalizeColors(without(t.Attr, "xmlns", "xmlns:*"))
				writeStart(&out, name, attrs)
				if label == nil {
					writeStart(&flat, name, attrs)
				}
				stack = append(stack, frame{name: name, dx: parent.dx, dy: parent.dy})
			}

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parsing board svg: unbalanced </%s>", qualified(t.Name))
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			fmt.Fprintf(&out, "</%s>", qualified(t.Name))
			if t.Name.Local == "text" && label != nil {
				label.Text = strings.TrimSpace(label.Text)
				if label.Text != "" {
					labels = append(labels, *label)
				}
				label = nil
				continue
			}
			if top.name != "" && label == nil {
				fmt.Fprintf(&flat, "</%s>", top.name)
			}

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			_ = xml.EscapeText(&out, t)
			if label != nil {
				label.Text += string(t)
				continue
			}
			_ = xml.EscapeText(&flat, t)

		default:
			// processing instructions, comments and directives
		}
	}

	if viewBox == 0 {
		return nil, fmt.Errorf("parsing board svg: empty document")
	}

	return &Drawing{
		SVG:     out.Bytes(),
		Flat:    flat.Bytes(),
		Labels:  labels,
		ViewBox: viewBox,
	}, nil
}

// nestedTransform maps a nested <svg> viewport onto its parent: x and y
// place it, and a viewBox shifts (and scales) its contents. Pieces are
// positioned through the viewBox origin alone.
func nestedTransform(attrs []xml.Attr) (dx, dy float64, transform string) {
	x, y := attrFloat(attrs, "x"), attrFloat(attrs, "y")
	sx, sy := 1.0, 1.0

	if vb, ok := attr(attrs, "viewBox"); ok {
		f := strings.FieldsFunc(vb, func(r rune) bool { return r == ' ' || r == ',' })
		if len(f) == 4 {
			minX, minY := parseLength(f[0]), parseLength(f[1])
			vw, vh := parseLength(f[2]), parseLength(f[3])
			if w := attrFloat(attrs, "width"); w > 0 && vw > 0 {
				sx = w / vw
			}
			if h := attrFloat(attrs, "height"); h > 0 && vh > 0 {
				sy = h / vh
			}
			x -= minX * sx
			y -= minY * sy
		}
	}

	transform = fmt.Sprintf("translate(%s,%s)", ftoa(x), ftoa(y))
	if sx != 1 || sy != 1 {
		transform += fmt.Sprintf(" scale(%s,%s)", ftoa(sx), ftoa(sy))
	}
	return x, y, transform
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func writeStart(buf *bytes.Buffer, name string, attrs []xml.Attr) {
	buf.WriteByte('<')
	buf.WriteString(name)
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(qualified(a.Name))
		buf.WriteString(`="`)
		_ = xml.EscapeText(buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	buf.WriteByte('>')
}

// without drops unprefixed attributes by name. The name "xmlns:*" drops
// every prefixed namespace declaration.
func without(attrs []xml.Attr, names ...string) []xml.Attr {
	kept := make([]xml.Attr, 0, len(attrs))
	for _, a := range attrs {
		drop := false
		for _, n := range names {
			if a.Name.Space == "" && a.Name.Local == n {
				drop = true
			}
			if n == "xmlns:*" && a.Name.Space == "xmlns" {
				drop = true
			}
		}
		if !drop {
			kept = append(kept, a)
		}
	}
	return kept
}

// colorProperties are the paint properties whose hex values get a '#'.
var colorProperties = map[string]bool{
	"fill":       true,
	"stroke":     true,
	"stop-color": true,
	"color":      true,
}

// normalizeColors prefixes bare hex colours such as "fill:000000" with '#'.
// The board drawing emits them for piece styles and strict parsers reject
// the whole document.
func normalizeColors(attrs []xml.Attr) []xml.Attr {
	for i, a := range attrs {
		if a.Name.Space != "" {
			continue
		}
		switch {
		case a.Name.Local == "style":
			attrs[i].Value = normalizeStyle(a.Value)
		case colorProperties[a.Name.Local] && bareHex(strings.TrimSpace(a.Value)):
			attrs[i].Value = "#" + strings.TrimSpace(a.Value)
		}
	}
	return attrs
}

func normalizeStyle(style string) string {
	decls := strings.Split(style, ";")
	changed := false
	for i, decl := range decls {
		k, v, found := strings.Cut(decl, ":")
		if !found || !colorProperties[strings.ToLower(strings.TrimSpace(k))] {
			continue
		}
		value := strings.TrimSpace(v)
		if !bareHex(value) {
			continue
		}
		decls[i] = k + ":" + strings.Replace(v, value, "#"+value, 1)
		changed = true
	}
	if !changed {
		return style
	}
	return strings.Join(decls, ";")
}

func bareHex(s string) bool {
	if len(s) != 3 && len(s) != 6 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

func attr(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func attrFloat(attrs []xml.Attr, name string) float64 {
	v, _ := attr(attrs, name)
	return parseLength(v)
}

// parseLength reads a number with an optional px suffix. Bad input is 0.
func parseLength(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// textLabel reads position and styling from a <text> element. Values in
// the style attribute win over presentation attributes.
func textLabel(attrs []xml.Attr, dx, dy float64) *Label {
	l := &Label{
		X:        attrFloat(attrs, "x") + dx,
		Y:        attrFloat(attrs, "y") + dy,
		FontSize: 11,
		Fill:     color.Black,
	}

	props := map[string]string{}
	for _, name := range []string{"font-size", "fill", "text-anchor"} {
		if v, ok := attr(attrs, name); ok {
			props[name] = v
		}
	}
	if style, ok := attr(attrs, "style"); ok {
		for _, decl := range strings.Split(style, ";") {
			k, v, found := strings.Cut(decl, ":")
			if found {
				props[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
		}
	}

	if fs := parseLength(props["font-size"]); fs > 0 {
		l.FontSize = fs
	}
	if c, err := ParseHexColor(props["fill"]); err == nil {
		l.Fill = c
	}
	l.AnchorEnd = props["text-anchor"] == "end"
	return l
}
