package certificate

// Metrics measures rendered text width in points. Both the PDF sink and the
// editor canvas measure through the same implementation.
type Metrics interface {
	WidthOf(text string, size float64, weight FontWeight) float64
}

// Layout is a resolved draw instruction in document space (bottom-left origin, Y up).
type Layout struct {
	Text  string
	DrawX float64
	DrawY float64
	Width float64
}

// ResolveLayout computes the draw anchor for text rendered with f's style.
// Only the font variant, size and alignment of f are read; f.Value is ignored.
func ResolveLayout(f TextField, text string, m Metrics, page PageSize) Layout {
	width := measure(f, text, m)
	return Layout{
		Text:  text,
		DrawX: anchorX(f.X, width, f.Align),
		DrawY: page.FlipY(f.Y),
		Width: width,
	}
}

func anchorX(x, width float64, align Align) float64 {
	switch align {
	case AlignCenter:
		return x - width/2
	case AlignRight:
		return x - width
	default:
		return x
	}
}

// Box is a field's hit area in canvas space (top-left origin, Y down).
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether (x, y) lies inside b, edges included.
func (b Box) Contains(x, y float64) bool {
	return x >= b.X && x <= b.X+b.W && y >= b.Y && y <= b.Y+b.H
}

// hitPadding widens every field box on each side and below the baseline.
const hitPadding = 5

// FieldBox is the canvas-space selection box of f showing text: the measured
// width padded horizontally, spanning one font size above the baseline and
// the padding below it.
func FieldBox(f TextField, text string, m Metrics) Box {
	width := measure(f, text, m)
	left := anchorX(f.X, width, f.Align)
	return Box{
		X: left - hitPadding,
		Y: f.Y - f.FontSize,
		W: width + 2*hitPadding,
		H: f.FontSize + hitPadding,
	}
}

func measure(f TextField, text string, m Metrics) float64 {
	if text == "" {
		return 0
	}
	return m.WidthOf(text, f.FontSize, f.Variant())
}
