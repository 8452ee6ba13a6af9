// Package editor holds the interactive template editing state: one staged
// draft per kind, selection, dragging and the preview toggle.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"certEngine/internal/certificate"
)

var (
	ErrDragInProgress = errors.New("a drag is in progress")
	ErrNotDragging    = errors.New("no drag in progress")
	ErrNoSelection    = errors.New("no field selected")
	ErrUnknownField   = errors.New("unknown field")
	ErrPreviewMode    = errors.New("fields cannot be moved in preview mode")
	ErrNoImage        = errors.New("no background image staged")
)

// Draft is the staged state of one kind. Fields is never mutated in place;
// every edit installs a new slice.
type Draft struct {
	Image  string                  `json:"image"`
	Fields []certificate.TextField `json:"fields"`
	Stored bool                    `json:"stored"`
	Dirty  bool                    `json:"dirty"`
}

type drag struct {
	fieldID string
	offX    float64
	offY    float64
}

// Session is single-user and not safe for concurrent use.
type Session struct {
	eventID  uint
	page     certificate.PageSize
	store    certificate.TemplateStore
	metrics  certificate.Metrics
	logger   *slog.Logger
	newID    func() string
	drafts   map[certificate.Kind]Draft
	kind     certificate.Kind
	selected string
	drag     *drag
	preview  bool
	viewport Viewport
}

// Options configure Open.
type Options struct {
	Page certificate.PageSize
	// NewID generates ids for added fields; nil means "field_<unix millis>" made unique within the draft.
	NewID func() string
}

// Open seeds a draft for every kind from the store, falling back to the
// built-in default fields. A stored image is staged as is; kinds without one
// start with no image.
func Open(ctx context.Context, eventID uint, store certificate.TemplateStore, metrics certificate.Metrics, opts Options, logger *slog.Logger) (*Session, error) {
	if store == nil || metrics == nil {
		return nil, errors.New("editor: store and metrics are required")
	}
	if opts.Page == (certificate.PageSize{}) {
		opts.Page = certificate.CanonicalPage
	}
	if err := opts.Page.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		eventID:  eventID,
		page:     opts.Page,
		store:    store,
		metrics:  metrics,
		logger:   logger.With(slog.Uint64("event_id", uint64(eventID))),
		newID:    opts.NewID,
		drafts:   make(map[certificate.Kind]Draft, 3),
		kind:     certificate.DefaultKind,
		viewport: PageViewport(opts.Page),
	}
	resolver := certificate.NewTemplateResolver(store, opts.Page, "", s.logger)
	for _, k := range certificate.Kinds() {
		r := resolver.Resolve(ctx, eventID, k)
		d := Draft{Fields: r.Fields, Stored: r.Stored}
		if !r.DefaultImage() {
			d.Image = r.ImageRef
		}
		s.drafts[k] = d
	}
	return s, nil
}

// EventID returns the event being edited.
func (s *Session) EventID() uint { return s.eventID }

// Page returns the page size the session edits.
func (s *Session) Page() certificate.PageSize { return s.page }

// Kind returns the kind currently being edited.
func (s *Session) Kind() certificate.Kind { return s.kind }

// Draft returns the staged draft for kind. The returned Fields must not be modified.
func (s *Session) Draft(kind certificate.Kind) Draft { return s.drafts[kind] }

// Selected returns the selected field id, or "".
func (s *Session) Selected() string { return s.selected }

// Dragging reports whether a drag is in progress.
func (s *Session) Dragging() bool { return s.drag != nil }

// Preview reports whether sample values are shown instead of raw tokens.
func (s *Session) Preview() bool { return s.preview }

// SetViewport records where the canvas is displayed.
func (s *Session) SetViewport(v Viewport) { s.viewport = v }

// SwitchKind changes the edited kind and clears the selection.
func (s *Session) SwitchKind(kind certificate.Kind) error {
	if s.drag != nil {
		return ErrDragInProgress
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown template type %q", certificate.ErrInvalidInput, kind)
	}
	s.kind = kind
	s.selected = ""
	return nil
}

// SelectField selects id in the current draft.
func (s *Session) SelectField(id string) error {
	if s.drag != nil {
		return ErrDragInProgress
	}
	if certificate.IndexOf(s.fields(), id) < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	s.selected = id
	return nil
}

// Deselect clears the selection.
func (s *Session) Deselect() error {
	if s.drag != nil {
		return ErrDragInProgress
	}
	s.selected = ""
	return nil
}

// SelectAt selects the topmost field whose box contains the pointer, or
// deselects when none does. It returns the selected id.
func (s *Session) SelectAt(p Pointer) (string, error) {
	if s.drag != nil {
		return "", ErrDragInProgress
	}
	x, y := s.viewport.ToPage(p, s.page)
	s.selected = s.hit(x, y)
	return s.selected, nil
}

func (s *Session) hit(x, y float64) string {
	fields := s.fields()
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if certificate.FieldBox(f, s.displayText(f), s.metrics).Contains(x, y) {
			return f.ID
		}
	}
	return ""
}

// AddField appends a new field at the page centre and selects it.
func (s *Session) AddField() (string, error) {
	if s.drag != nil {
		return "", ErrDragInProgress
	}
	fields := s.fields()
	id := s.nextID(fields)
	next := make([]certificate.TextField, 0, len(fields)+1)
	next = append(next, fields...)
	next = append(next, certificate.NewField(id, s.page))
	s.setFields(next)
	s.selected = id
	return id, nil
}

func (s *Session) nextID(fields []certificate.TextField) string {
	if s.newID != nil {
		if id := s.newID(); id != "" && certificate.IndexOf(fields, id) < 0 {
			return id
		}
	}
	ms := time.Now().UnixMilli()
	for {
		id := "field_" + strconv.FormatInt(ms, 10)
		if certificate.IndexOf(fields, id) < 0 {
			return id
		}
		ms++
	}
}

// DeleteField removes id from the current draft.
func (s *Session) DeleteField(id string) error {
	if s.drag != nil {
		return ErrDragInProgress
	}
	fields := s.fields()
	if certificate.IndexOf(fields, id) < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	next := make([]certificate.TextField, 0, len(fields)-1)
	for _, f := range fields {
		if f.ID != id {
			next = append(next, f)
		}
	}
	s.setFields(next)
	if s.selected == id {
		s.selected = ""
	}
	return nil
}

// FieldPatch is a partial update; nil members are left unchanged. The id cannot be patched.
type FieldPatch struct {
	Label      *string                 `json:"label,omitempty"`
	Value      *string                 `json:"value,omitempty"`
	X          *float64                `json:"x,omitempty"`
	Y          *float64                `json:"y,omitempty"`
	FontSize   *float64                `json:"fontSize,omitempty"`
	FontWeight *certificate.FontWeight `json:"fontWeight,omitempty"`
	Color      *string                 `json:"color,omitempty"`
	Align      *certificate.Align      `json:"align,omitempty"`
}

func (p FieldPatch) apply(f certificate.TextField) certificate.TextField {
	if p.Label != nil {
		f.Label = *p.Label
	}
	if p.Value != nil {
		f.Value = *p.Value
	}
	if p.X != nil {
		f.X = *p.X
	}
	if p.Y != nil {
		f.Y = *p.Y
	}
	if p.FontSize != nil {
		f.FontSize = *p.FontSize
	}
	if p.FontWeight != nil {
		f.FontWeight = *p.FontWeight
	}
	if p.Color != nil {
		f.Color = *p.Color
	}
	if p.Align != nil {
		f.Align = *p.Align
	}
	return f
}

// UpdateSelectedField merges patch into the selected field. With nothing
// selected it does nothing and reports false. A patch that would make the
// field invalid is rejected whole.
func (s *Session) UpdateSelectedField(patch FieldPatch) (bool, error) {
	if s.selected == "" {
		return false, nil
	}
	fields := s.fields()
	i := certificate.IndexOf(fields, s.selected)
	if i < 0 {
		s.selected = ""
		return false, nil
	}
	updated := patch.apply(fields[i])
	if err := updated.Validate(); err != nil {
		return false, err
	}
	s.setFields(replaceAt(fields, i, updated))
	return true, nil
}

// BeginDrag selects fieldID and starts moving it. The pointer keeps its
// offset from the field anchor for the whole drag.
func (s *Session) BeginDrag(fieldID string, p Pointer) error {
	if s.preview {
		return ErrPreviewMode
	}
	if s.drag != nil {
		return ErrDragInProgress
	}
	fields := s.fields()
	i := certificate.IndexOf(fields, fieldID)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownField, fieldID)
	}
	x, y := s.viewport.ToPage(p, s.page)
	s.selected = fieldID
	s.drag = &drag{fieldID: fieldID, offX: x - fields[i].X, offY: y - fields[i].Y}
	return nil
}

// BeginDragAt hit-tests the pointer and starts dragging the field under it.
// It returns "" without error when the pointer is over empty canvas, which
// also clears the selection.
func (s *Session) BeginDragAt(p Pointer) (string, error) {
	if s.preview {
		return "", ErrPreviewMode
	}
	id, err := s.SelectAt(p)
	if err != nil || id == "" {
		return id, err
	}
	return id, s.BeginDrag(id, p)
}

// DragTo moves the dragged field so that it follows the pointer 1:1 in page space.
func (s *Session) DragTo(p Pointer) error {
	if s.drag == nil {
		return ErrNotDragging
	}
	fields := s.fields()
	i := certificate.IndexOf(fields, s.drag.fieldID)
	if i < 0 {
		id := s.drag.fieldID
		s.drag = nil
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	x, y := s.viewport.ToPage(p, s.page)
	f := fields[i]
	f.X = x - s.drag.offX
	f.Y = y - s.drag.offY
	s.setFields(replaceAt(fields, i, f))
	return nil
}

// EndDrag finishes the drag; the field stays selected.
func (s *Session) EndDrag() error {
	if s.drag == nil {
		return ErrNotDragging
	}
	s.drag = nil
	return nil
}

// TogglePreview switches between raw tokens and sample values. Selection is kept
// but not outlined while previewing.
func (s *Session) TogglePreview() (bool, error) {
	if s.drag != nil {
		return s.preview, ErrDragInProgress
	}
	s.preview = !s.preview
	return s.preview, nil
}

// SetImage stages a background image reference for the current kind.
func (s *Session) SetImage(ref string) {
	d := s.drafts[s.kind]
	d.Image = strings.TrimSpace(ref)
	d.Dirty = true
	s.drafts[s.kind] = d
}

// ResetFields replaces the current draft's fields with the built-in defaults.
func (s *Session) ResetFields() error {
	if s.drag != nil {
		return ErrDragInProgress
	}
	s.setFields(certificate.DefaultFields(s.kind, s.page))
	s.selected = ""
	return nil
}

// Save persists one kind's draft as a full replacement.
func (s *Session) Save(ctx context.Context, kind certificate.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown template type %q", certificate.ErrInvalidInput, kind)
	}
	d := s.drafts[kind]
	if d.Image == "" {
		return ErrNoImage
	}
	if err := certificate.ValidateFields(d.Fields); err != nil {
		return err
	}
	t := certificate.Template{
		EventID:  s.eventID,
		Kind:     kind,
		ImageURL: d.Image,
		Fields:   certificate.CloneFields(d.Fields),
	}
	if err := s.store.PutTemplate(ctx, t); err != nil {
		return fmt.Errorf("save %s template: %w", kind, err)
	}
	d.Stored = true
	d.Dirty = false
	s.drafts[kind] = d
	s.logger.Info("template saved", slog.String("kind", string(kind)), slog.Int("fields", len(d.Fields)))
	return nil
}

// SaveReport aggregates a SaveAll run.
type SaveReport struct {
	Saved   []certificate.Kind          `json:"saved"`
	Skipped []certificate.Kind          `json:"skipped"`
	Failed  map[certificate.Kind]string `json:"failed,omitempty"`
}

// SuccessCount is the number of kinds persisted.
func (r SaveReport) SuccessCount() int { return len(r.Saved) }

// ErrorCount is the number of kinds whose save failed.
func (r SaveReport) ErrorCount() int { return len(r.Failed) }

// SaveAll attempts every kind with a staged image, continuing past failures.
func (s *Session) SaveAll(ctx context.Context) SaveReport {
	report := SaveReport{Failed: map[certificate.Kind]string{}}
	for _, k := range certificate.Kinds() {
		if s.drafts[k].Image == "" {
			report.Skipped = append(report.Skipped, k)
			continue
		}
		if err := s.Save(ctx, k); err != nil {
			s.logger.Warn("template save failed", slog.String("kind", string(k)), slog.String("error", err.Error()))
			report.Failed[k] = err.Error()
			continue
		}
		report.Saved = append(report.Saved, k)
	}
	return report
}

func (s *Session) fields() []certificate.TextField {
	return s.drafts[s.kind].Fields
}

func (s *Session) setFields(fields []certificate.TextField) {
	d := s.drafts[s.kind]
	d.Fields = fields
	d.Dirty = true
	s.drafts[s.kind] = d
}

func (s *Session) displayText(f certificate.TextField) string {
	if s.preview {
		return certificate.Substitute(f.Value, certificate.SampleContext)
	}
	return f.Value
}

func replaceAt(fields []certificate.TextField, i int, f certificate.TextField) []certificate.TextField {
	next := certificate.CloneFields(fields)
	next[i] = f
	return next
}
