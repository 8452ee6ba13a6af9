package fonts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certEngine/internal/certificate"
)

func TestWidthOf(t *testing.T) {
	fam, err := Default()
	require.NoError(t, err)

	assert.Zero(t, fam.WidthOf("", 12, certificate.WeightNormal))
	assert.Zero(t, fam.WidthOf("abc", 0, certificate.WeightNormal))

	w12 := fam.WidthOf("Juan Dela Cruz", 12, certificate.WeightNormal)
	w24 := fam.WidthOf("Juan Dela Cruz", 24, certificate.WeightNormal)
	assert.Greater(t, w12, 0.0)
	assert.InDelta(t, 2*w12, w24, 1e-9)

	ab := fam.WidthOf("ab", 16, certificate.WeightNormal)
	a := fam.WidthOf("a", 16, certificate.WeightNormal)
	b := fam.WidthOf("b", 16, certificate.WeightNormal)
	assert.InDelta(t, a+b, ab, 1e-9, "advances are additive")

	assert.Greater(t, fam.WidthOf("Certificate", 16, certificate.WeightBold), fam.WidthOf("Certificate", 16, certificate.WeightNormal))
}

func TestLoadFallsBack(t *testing.T) {
	fam, err := Load("/nonexistent/regular.ttf", "", nil)
	require.NoError(t, err)
	def, err := Default()
	require.NoError(t, err)
	assert.Equal(t, def.WidthOf("x", 10, certificate.WeightNormal), fam.WidthOf("x", 10, certificate.WeightNormal))
	assert.NotEmpty(t, fam.TTF(certificate.WeightBold))
}

func TestFromBytesRejectsGarbage(t *testing.T) {
	_, err := FromBytes([]byte("nope"), nil)
	assert.Error(t, err)
}

func TestFace(t *testing.T) {
	fam, err := Default()
	require.NoError(t, err)
	face, err := fam.Face(20, certificate.WeightBold)
	require.NoError(t, err)
	defer face.Close()
	assert.Greater(t, face.Metrics().Ascent.Ceil(), 0)
}
