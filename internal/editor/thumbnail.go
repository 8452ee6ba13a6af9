package editor

import (
	"context"
	"fmt"

	"certEngine/internal/certificate"
)

// Thumbnail renders a resolved template as a PNG with the sample values
// substituted and no selection outline.
func (c *Canvas) Thumbnail(ctx context.Context, images certificate.ImageFetcher, t certificate.ResolvedTemplate, scale float64) ([]byte, error) {
	raw, err := images.FetchBytes(ctx, t.ImageRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", certificate.ErrAssetUnavailable, err)
	}
	bg, err := DecodeImage(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", certificate.ErrAssetUnavailable, err)
	}
	rc := certificate.SampleContext
	img, err := c.Render(Frame{Background: bg, Fields: t.Fields, Context: &rc, Scale: scale})
	if err != nil {
		return nil, err
	}
	return EncodePNG(img)
}
