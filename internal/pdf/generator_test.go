package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certEngine/internal/certificate"
	"certEngine/internal/fonts"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		img.Set(x, 1, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	fam, err := fonts.Default()
	require.NoError(t, err)
	fixed := time.Date(2024, 10, 16, 9, 0, 0, 0, time.UTC)
	return NewGenerator(fam, func() time.Time { return fixed })
}

func TestGeneratorProducesPDF(t *testing.T) {
	g := newTestGenerator(t)
	doc, err := g.NewDocument(certificate.CanonicalPage)
	require.NoError(t, err)

	require.NoError(t, doc.DrawImage(testPNG(t), 0, 0, 842, 595))
	require.NoError(t, doc.DrawText(certificate.TextOp{Text: "Juan Dela Cruz", X: 300, Y: 260, Size: 36, Weight: certificate.WeightBold, Color: certificate.RGB{R: 0x2C, G: 0x3E, B: 0x50}}))
	require.NoError(t, doc.DrawText(certificate.TextOp{Text: "Ñandú – ünïcode", X: 10, Y: 10, Size: 12}))

	out, err := doc.Bytes()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGeneratorRejectsUnknownImage(t *testing.T) {
	doc, err := newTestGenerator(t).NewDocument(certificate.CanonicalPage)
	require.NoError(t, err)
	assert.ErrorIs(t, doc.DrawImage([]byte("RIFF....WEBP"), 0, 0, 842, 595), errUnsupportedImage)
}

func TestGeneratorRejectsBadPage(t *testing.T) {
	_, err := newTestGenerator(t).NewDocument(certificate.PageSize{})
	assert.ErrorIs(t, err, certificate.ErrInvalidInput)
}
