package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FallbackReason explains why a default was used instead of stored data.
type FallbackReason string

const (
	FallbackNone        FallbackReason = ""
	FallbackMissing     FallbackReason = "missing"
	FallbackEmptyFields FallbackReason = "empty_fields"
	FallbackNoImage     FallbackReason = "no_image"
	FallbackReadError   FallbackReason = "read_error"
)

// ResolvedTemplate is what the compositor draws: an image reference and the field list.
type ResolvedTemplate struct {
	ImageRef string
	Fields   []TextField
	// Stored is true when a template record exists for the pair.
	Stored bool
	// FieldsFallback and ImageFallback are independent; either may be set alone.
	FieldsFallback FallbackReason
	ImageFallback  FallbackReason
}

// DefaultFields reports whether the built-in field set is in use.
func (r ResolvedTemplate) DefaultFields() bool { return r.FieldsFallback != FallbackNone }

// DefaultImage reports whether the shared default background is in use.
func (r ResolvedTemplate) DefaultImage() bool { return r.ImageFallback != FallbackNone }

// TemplateResolver applies the stored-or-default rules for one page size.
type TemplateResolver struct {
	reader     TemplateReader
	page       PageSize
	defaultRef string
	logger     *slog.Logger
}

// NewTemplateResolver returns a resolver. An empty defaultRef means DefaultBackgroundRef.
func NewTemplateResolver(reader TemplateReader, page PageSize, defaultRef string, logger *slog.Logger) *TemplateResolver {
	if defaultRef == "" {
		defaultRef = DefaultBackgroundRef
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateResolver{reader: reader, page: page, defaultRef: defaultRef, logger: logger}
}

// Resolve never fails: read errors are logged and treated as "not found".
func (r *TemplateResolver) Resolve(ctx context.Context, eventID uint, kind Kind) ResolvedTemplate {
	stored, reason := r.lookup(ctx, eventID, kind)
	return r.apply(stored, reason, kind)
}

// ResolveStrict is Resolve for callers that refuse to generate without a stored
// record. A missing record and a failed read both yield ErrTemplateNotConfigured;
// a stored record with no fields still gets the default field set.
func (r *TemplateResolver) ResolveStrict(ctx context.Context, eventID uint, kind Kind) (ResolvedTemplate, error) {
	stored, reason := r.lookup(ctx, eventID, kind)
	if reason != FallbackNone {
		return ResolvedTemplate{}, fmt.Errorf("%w: event %d kind %s", ErrTemplateNotConfigured, eventID, kind)
	}
	return r.apply(stored, reason, kind), nil
}

func (r *TemplateResolver) lookup(ctx context.Context, eventID uint, kind Kind) (*Template, FallbackReason) {
	if r.reader == nil {
		return nil, FallbackMissing
	}
	t, err := r.reader.GetTemplate(ctx, eventID, kind)
	switch {
	case err == nil:
		return &t, FallbackNone
	case errors.Is(err, ErrNotFound):
		return nil, FallbackMissing
	default:
		r.logger.Warn("template lookup failed, using defaults",
			slog.Uint64("event_id", uint64(eventID)),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return nil, FallbackReadError
	}
}

func (r *TemplateResolver) apply(stored *Template, reason FallbackReason, kind Kind) ResolvedTemplate {
	out := ResolvedTemplate{
		ImageRef:       r.defaultRef,
		FieldsFallback: reason,
		ImageFallback:  reason,
	}
	if stored == nil {
		out.Fields = DefaultFields(kind, r.page)
		return out
	}
	out.Stored = true
	if len(stored.Fields) > 0 {
		out.Fields = CloneFields(stored.Fields)
		out.FieldsFallback = FallbackNone
	} else {
		out.Fields = DefaultFields(kind, r.page)
		out.FieldsFallback = FallbackEmptyFields
	}
	if ref := strings.TrimSpace(stored.ImageURL); ref != "" {
		out.ImageRef = ref
		out.ImageFallback = FallbackNone
	} else {
		out.ImageFallback = FallbackNoImage
	}
	return out
}
