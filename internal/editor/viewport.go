package editor

import "certEngine/internal/certificate"

// Pointer is a pointer position in device pixels, relative to the same origin
// as the viewport rectangle.
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport describes where the canvas is displayed: its bounding rectangle in
// CSS pixels and the device pixel ratio of the display.
type Viewport struct {
	Left             float64 `json:"left"`
	Top              float64 `json:"top"`
	Width            float64 `json:"width"`
	Height           float64 `json:"height"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
}

// PageViewport maps the page 1:1 onto CSS pixels at the origin.
func PageViewport(page certificate.PageSize) Viewport {
	return Viewport{Width: page.Width, Height: page.Height, DevicePixelRatio: 1}
}

// ToPage converts a device-pixel pointer into page points. The device pixel
// ratio is divided out first, then the CSS offset is removed and the result
// scaled by the page-to-display ratio on each axis.
func (v Viewport) ToPage(p Pointer, page certificate.PageSize) (x, y float64) {
	dpr := v.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1
	}
	sx, sy := 1.0, 1.0
	if v.Width > 0 {
		sx = page.Width / v.Width
	}
	if v.Height > 0 {
		sy = page.Height / v.Height
	}
	return (p.X/dpr - v.Left) * sx, (p.Y/dpr - v.Top) * sy
}
