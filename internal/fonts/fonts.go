// Package fonts provides the single certificate font family (Go Regular and Go
// Bold by default) shared by the PDF sink and the editor canvas, so that both
// measure text identically.
package fonts

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"certEngine/internal/certificate"
)

type variant struct {
	ttf  []byte
	font *sfnt.Font
	upem float64
}

// Family holds the two variants. Methods are safe for concurrent use.
type Family struct {
	regular variant
	bold    variant
	buffers sync.Pool
}

// Default returns the embedded Go family.
func Default() (*Family, error) {
	return FromBytes(goregular.TTF, gobold.TTF)
}

// Load reads TTF files from disk. Empty or unreadable paths fall back to the
// embedded Go font for that variant.
func Load(regularPath, boldPath string, logger *slog.Logger) (*Family, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return FromBytes(readOr(regularPath, goregular.TTF, logger), readOr(boldPath, gobold.TTF, logger))
}

func readOr(path string, fallback []byte, logger *slog.Logger) []byte {
	if path == "" {
		return fallback
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("font unavailable, using embedded Go font", slog.String("path", path), slog.String("error", err.Error()))
		return fallback
	}
	return data
}

// FromBytes parses regular and bold TTF data.
func FromBytes(regularTTF, boldTTF []byte) (*Family, error) {
	reg, err := parse(regularTTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := parse(boldTTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	f := &Family{regular: reg, bold: bold}
	f.buffers.New = func() any { return new(sfnt.Buffer) }
	return f, nil
}

func parse(data []byte) (variant, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return variant{}, err
	}
	return variant{ttf: data, font: f, upem: float64(f.UnitsPerEm())}, nil
}

func (f *Family) pick(weight certificate.FontWeight) *variant {
	if weight == certificate.WeightBold {
		return &f.bold
	}
	return &f.regular
}

// TTF returns the raw font file for weight, as embedded into PDF documents.
func (f *Family) TTF(weight certificate.FontWeight) []byte {
	return f.pick(weight).ttf
}

// WidthOf sums unhinted glyph advances in font units and scales to size.
// Kerning is not applied; neither renderer kerns.
func (f *Family) WidthOf(text string, size float64, weight certificate.FontWeight) float64 {
	if text == "" || size <= 0 {
		return 0
	}
	v := f.pick(weight)
	buf := f.buffers.Get().(*sfnt.Buffer)
	defer f.buffers.Put(buf)

	// With ppem equal to units-per-em the advance comes back in font units.
	ppem := fixed.Int26_6(v.font.UnitsPerEm()) << 6
	var units fixed.Int26_6
	for _, r := range text {
		idx, err := v.font.GlyphIndex(buf, r)
		if err != nil {
			continue
		}
		adv, err := v.font.GlyphAdvance(buf, idx, ppem, font.HintingNone)
		if err != nil {
			continue
		}
		units += adv
	}
	return float64(units) / 64 * size / v.upem
}

// Face opens a rasterising face at size points for 72 DPI output.
func (f *Family) Face(size float64, weight certificate.FontWeight) (font.Face, error) {
	face, err := opentype.NewFace(f.pick(weight).font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face at %.1fpt: %w", size, err)
	}
	return face, nil
}
