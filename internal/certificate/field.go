package certificate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FontWeight selects one of the two variants of the certificate font family.
type FontWeight string

const (
	WeightNormal FontWeight = "normal"
	WeightBold   FontWeight = "bold"
)

// Align determines how X relates to the rendered text box.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// TextField 是模板中一个可定位、带样式的文本字段。
// X/Y 使用左上角为原点、Y 轴向下的页面坐标（单位 pt），Y 为文字基线。
type TextField struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	Value      string     `json:"value"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	FontSize   float64    `json:"fontSize"`
	FontWeight FontWeight `json:"fontWeight"`
	Color      string     `json:"color"`
	Align      Align      `json:"align"`
}

// RGB is an 8-bit colour.
type RGB struct {
	R, G, B uint8
}

var hexColorPattern = regexp.MustCompile(`^#?([0-9a-fA-F]{2})([0-9a-fA-F]{2})([0-9a-fA-F]{2})$`)

// ParseColor accepts "RRGGBB" or "#RRGGBB". Anything else renders black.
func ParseColor(raw string) RGB {
	m := hexColorPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return RGB{}
	}
	var out [3]uint8
	for i := 0; i < 3; i++ {
		v, _ := strconv.ParseUint(m[i+1], 16, 8)
		out[i] = uint8(v)
	}
	return RGB{R: out[0], G: out[1], B: out[2]}
}

// ValidColor reports whether raw is a 6-digit hex colour with optional '#'.
func ValidColor(raw string) bool {
	return hexColorPattern.MatchString(strings.TrimSpace(raw))
}

// Bold reports whether the field uses the bold variant. Unknown weights render regular.
func (f TextField) Bold() bool {
	return f.FontWeight == WeightBold
}

// Variant is the font variant the field renders with.
func (f TextField) Variant() FontWeight {
	if f.Bold() {
		return WeightBold
	}
	return WeightNormal
}

// Validate checks a single field. Positions are deliberately unbounded.
func (f TextField) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("%w: field id is required", ErrInvalidInput)
	}
	if f.FontSize <= 0 {
		return fmt.Errorf("%w: field %q font size must be positive", ErrInvalidInput, f.ID)
	}
	switch f.FontWeight {
	case WeightNormal, WeightBold:
	default:
		return fmt.Errorf("%w: field %q has unknown font weight %q", ErrInvalidInput, f.ID, f.FontWeight)
	}
	switch f.Align {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return fmt.Errorf("%w: field %q has unknown align %q", ErrInvalidInput, f.ID, f.Align)
	}
	if !ValidColor(f.Color) {
		return fmt.Errorf("%w: field %q has invalid color %q", ErrInvalidInput, f.ID, f.Color)
	}
	return nil
}

// ValidateFields validates every field and the uniqueness of ids.
func ValidateFields(fields []TextField) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("%w: duplicate field id %q", ErrInvalidInput, f.ID)
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}

// CloneFields returns an independent copy of fields (nil stays nil).
func CloneFields(fields []TextField) []TextField {
	if fields == nil {
		return nil
	}
	out := make([]TextField, len(fields))
	copy(out, fields)
	return out
}

// IndexOf returns the position of id in fields, or -1.
func IndexOf(fields []TextField, id string) int {
	for i, f := range fields {
		if f.ID == id {
			return i
		}
	}
	return -1
}
