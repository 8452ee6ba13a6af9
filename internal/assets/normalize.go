package assets

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned for payloads no registered decoder accepts.
var ErrNotImage = errors.New("not a supported image")

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// Normalize returns JPEG input unchanged and re-encodes everything else
// (PNG, GIF, WebP, BMP, TIFF) as 8-bit non-interlaced PNG, the subset the
// PDF writer embeds reliably. EXIF orientation is applied while decoding.
func Normalize(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrNotImage
	}
	if bytes.HasPrefix(raw, jpegMagic) {
		return raw, nil
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Clone(img), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
