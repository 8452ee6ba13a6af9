package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ImageFetcher returns the raw bytes behind an image reference. Remote URLs and
// the bundled default are both served through it; timeouts are its concern.
type ImageFetcher interface {
	FetchBytes(ctx context.Context, ref string) ([]byte, error)
}

// Sink creates single-page documents.
type Sink interface {
	NewDocument(page PageSize) (Document, error)
}

// Document receives draw calls in document space: origin bottom-left, Y up, points.
type Document interface {
	// DrawImage places img with its lower-left corner at (x, y), scaled to w x h.
	DrawImage(img []byte, x, y, w, h float64) error
	// DrawText draws op.Text with its baseline starting at (op.X, op.Y).
	DrawText(op TextOp) error
	// Bytes serialises the finished document.
	Bytes() ([]byte, error)
}

// TextOp is one text draw call.
type TextOp struct {
	Text   string
	X, Y   float64
	Size   float64
	Weight FontWeight
	Color  RGB
}

// Options parameterise a compositor.
type Options struct {
	Page PageSize
	// RequireTemplate refuses to generate when no template record is stored.
	RequireTemplate bool
	// DefaultBackground overrides DefaultBackgroundRef.
	DefaultBackground string
}

// Certificate is one generated document.
type Certificate struct {
	Bytes    []byte
	FileName string
	Kind     Kind
	Attendee Attendee
	Event    Event
	Template ResolvedTemplate
}

// LabeledFileName is the kind-qualified download name.
func (c *Certificate) LabeledFileName() string {
	return LabeledFileName(c.Kind, c.Attendee.FullName())
}

// Compositor turns one attendee reference into one finished document.
// It holds no per-call state and may be shared between goroutines as long as
// its collaborators allow it.
type Compositor struct {
	records  RecordStore
	images   ImageFetcher
	metrics  Metrics
	sink     Sink
	opts     Options
	resolver *TemplateResolver
	logger   *slog.Logger
}

// NewCompositor wires the collaborators. A zero Options.Page means CanonicalPage.
func NewCompositor(records RecordStore, images ImageFetcher, metrics Metrics, sink Sink, opts Options, logger *slog.Logger) (*Compositor, error) {
	if records == nil || images == nil || metrics == nil || sink == nil {
		return nil, errors.New("compositor: records, images, metrics and sink are required")
	}
	if opts.Page == (PageSize{}) {
		opts.Page = CanonicalPage
	}
	if err := opts.Page.Validate(); err != nil {
		return nil, fmt.Errorf("compositor: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{
		records:  records,
		images:   images,
		metrics:  metrics,
		sink:     sink,
		opts:     opts,
		resolver: NewTemplateResolver(records, opts.Page, opts.DefaultBackground, logger),
		logger:   logger,
	}, nil
}

// Page returns the page size documents are created with.
func (c *Compositor) Page() PageSize { return c.opts.Page }

// Resolver exposes the template resolver bound to this compositor's page size.
func (c *Compositor) Resolver() *TemplateResolver { return c.resolver }

// Generate runs the full pipeline for one attendee. An empty kind means DefaultKind.
func (c *Compositor) Generate(ctx context.Context, referenceID string, kind Kind) (*Certificate, error) {
	ref := strings.TrimSpace(referenceID)
	if ref == "" {
		return nil, stepError(StepValidate, "", fmt.Errorf("%w: attendee reference is required", ErrInvalidInput))
	}
	if kind == "" {
		kind = DefaultKind
	}
	if !kind.Valid() {
		return nil, stepError(StepValidate, ref, fmt.Errorf("%w: unknown template type %q", ErrInvalidInput, kind))
	}

	attendee, err := c.records.GetAttendee(ctx, ref)
	if err != nil {
		return nil, stepError(StepAttendee, ref, err)
	}
	event, err := c.records.GetEvent(ctx, attendee.EventID)
	if err != nil {
		return nil, stepError(StepEvent, strconv.FormatUint(uint64(attendee.EventID), 10), err)
	}

	var resolved ResolvedTemplate
	if c.opts.RequireTemplate {
		resolved, err = c.resolver.ResolveStrict(ctx, event.ID, kind)
		if err != nil {
			return nil, stepError(StepTemplate, ref, err)
		}
	} else {
		resolved = c.resolver.Resolve(ctx, event.ID, kind)
	}

	logger := c.logger.With(
		slog.String("reference_id", ref),
		slog.String("kind", string(kind)),
		slog.Uint64("event_id", uint64(event.ID)),
	)
	if resolved.DefaultFields() || resolved.DefaultImage() {
		logger.Debug("template defaults in use",
			slog.String("fields", string(resolved.FieldsFallback)),
			slog.String("image", string(resolved.ImageFallback)),
		)
	}

	rc := NewRenderContext(attendee, event)
	out, err := c.Compose(ctx, resolved, rc)
	if err != nil {
		return nil, err
	}
	logger.Info("certificate generated", slog.Int("bytes", len(out)))

	return &Certificate{
		Bytes:    out,
		FileName: FileName(rc.AttendeeName),
		Kind:     kind,
		Attendee: attendee,
		Event:    event,
		Template: resolved,
	}, nil
}

// Compose draws an already resolved template with the given substitution values.
func (c *Compositor) Compose(ctx context.Context, t ResolvedTemplate, rc RenderContext) ([]byte, error) {
	page := c.opts.Page

	bg, err := c.images.FetchBytes(ctx, t.ImageRef)
	if err != nil {
		return nil, stepError(StepBackground, t.ImageRef, fmt.Errorf("%w: %w", ErrAssetUnavailable, err))
	}

	doc, err := c.sink.NewDocument(page)
	if err != nil {
		return nil, stepError(StepRender, "", err)
	}
	if err := doc.DrawImage(bg, 0, 0, page.Width, page.Height); err != nil {
		return nil, stepError(StepBackground, t.ImageRef, fmt.Errorf("%w: %w", ErrAssetUnavailable, err))
	}

	for _, f := range t.Fields {
		l := ResolveLayout(f, Substitute(f.Value, rc), c.metrics, page)
		if l.Text == "" {
			continue
		}
		op := TextOp{
			Text:   l.Text,
			X:      l.DrawX,
			Y:      l.DrawY,
			Size:   f.FontSize,
			Weight: f.Variant(),
			Color:  ParseColor(f.Color),
		}
		if err := doc.DrawText(op); err != nil {
			return nil, stepError(StepRender, f.ID, err)
		}
	}

	out, err := doc.Bytes()
	if err != nil {
		return nil, stepError(StepSerialize, "", err)
	}
	return out, nil
}
