package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"certEngine/internal/certificate"
)

func TestViewportToPage(t *testing.T) {
	page := certificate.CanonicalPage

	x, y := PageViewport(page).ToPage(Pointer{X: 421, Y: 300}, page)
	assert.Equal(t, 421.0, x)
	assert.Equal(t, 300.0, y)

	// canvas shown at half size, 100px from the left, on a 2x display
	v := Viewport{Left: 100, Top: 20, Width: 421, Height: 297.5, DevicePixelRatio: 2}
	x, y = v.ToPage(Pointer{X: 2 * (100 + 210.5), Y: 2 * (20 + 100)}, page)
	assert.InDelta(t, 421, x, 1e-9)
	assert.InDelta(t, 200, y, 1e-9)

	// a zero ratio is treated as 1
	v.DevicePixelRatio = 0
	x, _ = v.ToPage(Pointer{X: 100 + 210.5}, page)
	assert.InDelta(t, 421, x, 1e-9)
}
