package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"certEngine/internal/certificate"
)

const (
	familyName = "certificate"
	creator    = "certEngine"
)

// FontSource supplies the TTF data embedded into every document.
type FontSource interface {
	TTF(weight certificate.FontWeight) []byte
}

// Generator 基于 gofpdf 生成单页证书 PDF，实现 certificate.Sink。
type Generator struct {
	fonts FontSource
	now   func() time.Time
}

// NewGenerator returns a sink. now stamps the document creation date; nil means time.Now.
func NewGenerator(fonts FontSource, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{fonts: fonts, now: now}
}

// NewDocument starts a single page of exactly page.Width x page.Height points.
func (g *Generator) NewDocument(page certificate.PageSize) (certificate.Document, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	// "P" keeps Size as given; "L" would swap width and height.
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: page.Width, Ht: page.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator(creator, true)
	pdf.SetCreationDate(g.now())
	pdf.SetCatalogSort(true)
	pdf.AddUTF8FontFromBytes(familyName, "", g.fonts.TTF(certificate.WeightNormal))
	pdf.AddUTF8FontFromBytes(familyName, "B", g.fonts.TTF(certificate.WeightBold))
	pdf.AddPage()
	if pdf.Err() {
		return nil, fmt.Errorf("init pdf: %w", pdf.Error())
	}
	return &document{pdf: pdf, page: page}, nil
}

type document struct {
	pdf    *gofpdf.Fpdf
	page   certificate.PageSize
	images int
}

// DrawImage takes a bottom-left anchored rectangle; gofpdf places images by their top-left corner.
func (d *document) DrawImage(img []byte, x, y, w, h float64) error {
	imageType, err := sniffImageType(img)
	if err != nil {
		return err
	}
	d.images++
	name := fmt.Sprintf("image-%d", d.images)
	opts := gofpdf.ImageOptions{ImageType: imageType, AllowNegativePosition: true}
	d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img))
	if d.pdf.Err() {
		return fmt.Errorf("register image: %w", d.pdf.Error())
	}
	top := d.page.Height - y - h
	d.pdf.ImageOptions(name, x, top, w, h, false, opts, 0, "")
	if d.pdf.Err() {
		return fmt.Errorf("draw image: %w", d.pdf.Error())
	}
	return nil
}

// DrawText converts the document-space baseline back to gofpdf's top-down Y.
func (d *document) DrawText(op certificate.TextOp) error {
	style := ""
	if op.Weight == certificate.WeightBold {
		style = "B"
	}
	d.pdf.SetFont(familyName, style, op.Size)
	d.pdf.SetTextColor(int(op.Color.R), int(op.Color.G), int(op.Color.B))
	d.pdf.Text(op.X, d.page.Height-op.Y, op.Text)
	if d.pdf.Err() {
		return fmt.Errorf("draw text: %w", d.pdf.Error())
	}
	return nil
}

func (d *document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var errUnsupportedImage = errors.New("unsupported image format")

// sniffImageType recognises the three formats gofpdf embeds natively.
func sniffImageType(b []byte) (string, error) {
	switch {
	case bytes.HasPrefix(b, []byte{0xFF, 0xD8, 0xFF}):
		return "JPG", nil
	case bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1a\n")):
		return "PNG", nil
	case bytes.HasPrefix(b, []byte("GIF87a")), bytes.HasPrefix(b, []byte("GIF89a")):
		return "GIF", nil
	}
	return "", errUnsupportedImage
}
