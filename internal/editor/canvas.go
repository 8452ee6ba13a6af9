package editor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"certEngine/internal/certificate"
)

// FaceSource opens rasterising faces of the certificate family.
type FaceSource interface {
	Face(size float64, weight certificate.FontWeight) (font.Face, error)
}

// Frame is one canvas redraw.
type Frame struct {
	Background image.Image
	Fields     []certificate.TextField
	// Context substitutes tokens when set; raw values are drawn otherwise.
	Context  *certificate.RenderContext
	Selected string
	// Scale is output pixels per page point; 0 means 1.
	Scale float64
}

var selectionColor = color.NRGBA{R: 0x34, G: 0x98, B: 0xDB, A: 0xFF}

// Canvas rasterises frames with the same layout rules as the PDF path.
type Canvas struct {
	page    certificate.PageSize
	metrics certificate.Metrics
	faces   FaceSource
}

// NewCanvas returns a canvas for page.
func NewCanvas(page certificate.PageSize, metrics certificate.Metrics, faces FaceSource) *Canvas {
	return &Canvas{page: page, metrics: metrics, faces: faces}
}

type faceKey struct {
	size   float64
	weight certificate.FontWeight
}

// Render draws the background stretched to the page, then every field in
// order, then the selection outline.
func (c *Canvas) Render(fr Frame) (*image.NRGBA, error) {
	scale := fr.Scale
	if scale <= 0 {
		scale = 1
	}
	w := int(math.Round(c.page.Width * scale))
	h := int(math.Round(c.page.Height * scale))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: canvas %dx%d", certificate.ErrInvalidInput, w, h)
	}

	var dst *image.NRGBA
	if fr.Background != nil {
		dst = imaging.Resize(fr.Background, w, h, imaging.Lanczos)
	} else {
		dst = imaging.New(w, h, color.White)
	}

	faces := map[faceKey]font.Face{}
	defer func() {
		for _, f := range faces {
			_ = f.Close()
		}
	}()

	var outline *certificate.Box
	for _, f := range fr.Fields {
		text := f.Value
		if fr.Context != nil {
			text = certificate.Substitute(text, *fr.Context)
		}
		if f.ID == fr.Selected {
			b := certificate.FieldBox(f, text, c.metrics)
			outline = &b
		}
		if text == "" {
			continue
		}
		key := faceKey{size: f.FontSize * scale, weight: f.Variant()}
		face, ok := faces[key]
		if !ok {
			var err error
			face, err = c.faces.Face(key.size, key.weight)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.ID, err)
			}
			faces[key] = face
		}
		l := certificate.ResolveLayout(f, text, c.metrics, c.page)
		rgb := certificate.ParseColor(f.Color)
		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.NRGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: 0xFF}),
			Face: face,
			// canvas space keeps the top-left origin, so the baseline is the raw Y
			Dot: fixed.Point26_6{X: toFixed(l.DrawX * scale), Y: toFixed(f.Y * scale)},
		}
		d.DrawString(text)
	}

	if outline != nil {
		strokeRect(dst, *outline, scale, selectionColor)
	}
	return dst, nil
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

func strokeRect(dst *image.NRGBA, b certificate.Box, scale float64, c color.NRGBA) {
	x0 := int(math.Floor(b.X * scale))
	y0 := int(math.Floor(b.Y * scale))
	x1 := int(math.Ceil((b.X + b.W) * scale))
	y1 := int(math.Ceil((b.Y + b.H) * scale))
	for x := x0; x <= x1; x++ {
		dst.SetNRGBA(x, y0, c)
		dst.SetNRGBA(x, y1, c)
	}
	for y := y0; y <= y1; y++ {
		dst.SetNRGBA(x0, y, c)
		dst.SetNRGBA(x1, y, c)
	}
}

// DecodeImage decodes a background for the canvas.
func DecodeImage(b []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	return img, nil
}

// EncodePNG serialises a rendered frame.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Frame builds the frame for the current draft: sample values and no outline
// in preview mode, raw tokens and the selection outline otherwise.
func (s *Session) Frame(bg image.Image, scale float64) Frame {
	fr := Frame{Background: bg, Fields: s.fields(), Scale: scale}
	if s.preview {
		rc := certificate.SampleContext
		fr.Context = &rc
	} else {
		fr.Selected = s.selected
	}
	return fr
}
