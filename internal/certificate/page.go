package certificate

import "fmt"

// PageSize is measured in points; certificates are always a single page.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CanonicalPage is A4 landscape. The editor canvas and the built-in default
// fields are calibrated for it; the older 792x612 letter call site was retired.
var CanonicalPage = PageSize{Width: 842, Height: 595}

// Validate rejects non-positive dimensions.
func (p PageSize) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: page size %gx%g", ErrInvalidInput, p.Width, p.Height)
	}
	return nil
}

// FlipY converts a top-left-origin Y (canvas) into a bottom-left-origin Y (document).
func (p PageSize) FlipY(y float64) float64 {
	return p.Height - y
}
