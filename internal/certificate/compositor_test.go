package certificate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store   *memStore
	fetcher *fakeFetcher
	sink    *recordingSink
	comp    *Compositor
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{store: newMemStore(), fetcher: &fakeFetcher{fail: map[string]error{}}, sink: &recordingSink{}}
	h.store.events[1] = Event{ID: 1, Name: "Sample Conference 2024", Venue: "Manila", StartDate: date(2024, 10, 16), EndDate: date(2024, 10, 16)}
	h.store.attendees["REF-1"] = Attendee{ID: 10, ReferenceID: "REF-1", PersonalName: "Juan", LastName: "Dela Cruz", EventID: 1}
	comp, err := NewCompositor(h.store, h.fetcher, charMetrics{}, h.sink, opts, quietLogger())
	require.NoError(t, err)
	h.comp = comp
	return h
}

func TestGenerateDrawsBackgroundThenFieldsInOrder(t *testing.T) {
	h := newHarness(t, Options{})
	fields := []TextField{
		{ID: "name", Value: TokenAttendeeName, X: 421, Y: 335, FontSize: 36, FontWeight: WeightBold, Color: "#2C3E50", Align: AlignCenter},
		{ID: "date", Value: "on " + TokenEventDate, X: 50, Y: 500, FontSize: 14, FontWeight: WeightNormal, Color: "C0392B", Align: AlignLeft},
		{ID: "blank", Value: "", X: 1, Y: 1, FontSize: 10, FontWeight: WeightNormal, Color: "#000000", Align: AlignRight},
	}
	require.NoError(t, h.store.PutTemplate(context.Background(), Template{EventID: 1, Kind: KindParticipation, ImageURL: "bg.png", Fields: fields}))

	cert, err := h.comp.Generate(context.Background(), " REF-1 ", "")
	require.NoError(t, err)
	assert.Equal(t, KindParticipation, cert.Kind)
	assert.Equal(t, "Certificate_Juan_Dela_Cruz.pdf", cert.FileName)
	assert.Equal(t, "Certificate_Participation_Juan_Dela_Cruz.pdf", cert.LabeledFileName())
	assert.Equal(t, "%PDF images=1 texts=2", string(cert.Bytes))

	doc := h.sink.last()
	assert.Equal(t, CanonicalPage, doc.page)
	require.Len(t, doc.images, 1)
	assert.Equal(t, imageCall{"img:bg.png", 0, 0, 842, 595}, doc.images[0])

	require.Len(t, doc.texts, 2)
	name := doc.texts[0]
	assert.Equal(t, "Juan Dela Cruz", name.Text)
	assert.InDelta(t, 421-14*36*0.6/2, name.X, eps)
	assert.Equal(t, 595.0-335, name.Y)
	assert.Equal(t, WeightBold, name.Weight)
	assert.Equal(t, RGB{0x2C, 0x3E, 0x50}, name.Color)

	assert.Equal(t, TextOp{Text: "on October 16, 2024", X: 50, Y: 95, Size: 14, Weight: WeightNormal, Color: RGB{0xC0, 0x39, 0x2B}}, doc.texts[1])
}

func TestGenerateAttendanceFallsBackToAttendanceDefaults(t *testing.T) {
	h := newHarness(t, Options{})
	cert, err := h.comp.Generate(context.Background(), "REF-1", KindAttendance)
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultBackgroundRef}, h.fetcher.refs)
	assert.Equal(t, DefaultFields(KindAttendance, CanonicalPage), cert.Template.Fields)
	assert.True(t, cert.Template.DefaultFields())

	texts := h.sink.last().texts
	require.Len(t, texts, 3)
	assert.Equal(t, "Juan Dela Cruz", texts[0].Text)
	assert.Equal(t, "attended Sample Conference 2024", texts[1].Text)
	assert.Equal(t, "on October 16, 2024", texts[2].Text)
}

func TestGenerateUsesCustomDefaultBackground(t *testing.T) {
	h := newHarness(t, Options{DefaultBackground: "bundled:/srv/bg.png", Page: PageSize{Width: 792, Height: 612}})
	_, err := h.comp.Generate(context.Background(), "REF-1", KindAwardee)
	require.NoError(t, err)
	assert.Equal(t, []string{"bundled:/srv/bg.png"}, h.fetcher.refs)
	assert.Equal(t, imageCall{"img:bundled:/srv/bg.png", 0, 0, 792, 612}, h.sink.last().images[0])
}

func TestGenerateErrors(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.attendees["ORPHAN"] = Attendee{ReferenceID: "ORPHAN", PersonalName: "No", LastName: "Event", EventID: 99}
	ctx := context.Background()

	_, err := h.comp.Generate(ctx, "  ", KindParticipation)
	assert.ErrorIs(t, err, ErrInvalidInput)
	step, _ := FailedStep(err)
	assert.Equal(t, StepValidate, step)

	_, err = h.comp.Generate(ctx, "REF-1", Kind("diploma"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.comp.Generate(ctx, "NOPE", KindParticipation)
	assert.ErrorIs(t, err, ErrNotFound)
	step, _ = FailedStep(err)
	assert.Equal(t, StepAttendee, step)
	assert.Contains(t, err.Error(), `"NOPE"`)

	_, err = h.comp.Generate(ctx, "ORPHAN", KindParticipation)
	assert.ErrorIs(t, err, ErrNotFound)
	step, _ = FailedStep(err)
	assert.Equal(t, StepEvent, step)

	assert.Empty(t, h.sink.docs, "no document is started before records resolve")
}

func TestGenerateBackgroundFailureAborts(t *testing.T) {
	h := newHarness(t, Options{})
	h.fetcher.fail[DefaultBackgroundRef] = errors.New("timeout")

	cert, err := h.comp.Generate(context.Background(), "REF-1", KindParticipation)
	assert.Nil(t, cert)
	assert.ErrorIs(t, err, ErrAssetUnavailable)
	assert.ErrorContains(t, err, "timeout")
	step, ok := FailedStep(err)
	assert.True(t, ok)
	assert.Equal(t, StepBackground, step)
	assert.Empty(t, h.sink.docs)
}

func TestGenerateRequireTemplate(t *testing.T) {
	h := newHarness(t, Options{RequireTemplate: true})
	ctx := context.Background()

	_, err := h.comp.Generate(ctx, "REF-1", KindAwardee)
	require.ErrorIs(t, err, ErrTemplateNotConfigured)
	step, _ := FailedStep(err)
	assert.Equal(t, StepTemplate, step)

	require.NoError(t, h.store.PutTemplate(ctx, Template{EventID: 1, Kind: KindAwardee, ImageURL: "award.png"}))
	cert, err := h.comp.Generate(ctx, "REF-1", KindAwardee)
	require.NoError(t, err)
	assert.Equal(t, "Certificate_Award_Juan_Dela_Cruz.pdf", cert.LabeledFileName())
	assert.Equal(t, "Outstanding Achievement Award", h.sink.last().texts[1].Text)
}

func TestGenerateBatchFailuresAreIndependent(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.attendees["A"] = Attendee{ReferenceID: "A", PersonalName: "Ana", MiddleName: "B", LastName: "Reyes", EventID: 1}
	h.store.attendees["B"] = Attendee{ReferenceID: "B", PersonalName: "Ben", LastName: "Cruz", EventID: 404}
	h.store.attendees["C"] = Attendee{ReferenceID: "C", PersonalName: "Cara", LastName: "Lim", EventID: 1}

	results := map[string]error{}
	names := map[string]string{}
	for _, ref := range []string{"A", "B", "C"} {
		cert, err := h.comp.Generate(context.Background(), ref, KindParticipation)
		results[ref] = err
		if err == nil {
			names[ref] = cert.FileName
		}
	}
	assert.NoError(t, results["A"])
	assert.ErrorIs(t, results["B"], ErrNotFound)
	assert.NoError(t, results["C"])
	assert.Equal(t, "Certificate_Ana_Reyes.pdf", names["A"])
	assert.Equal(t, "Certificate_Cara_Lim.pdf", names["C"])
}

func TestGenerateDoesNotMutateStoredTemplate(t *testing.T) {
	h := newHarness(t, Options{})
	fields := []TextField{{ID: "n", Value: TokenAttendeeName, X: 10, Y: 10, FontSize: 10, FontWeight: WeightNormal, Color: "#000000", Align: AlignLeft}}
	require.NoError(t, h.store.PutTemplate(context.Background(), Template{EventID: 1, Kind: KindParticipation, ImageURL: "bg.png", Fields: fields}))

	_, err := h.comp.Generate(context.Background(), "REF-1", KindParticipation)
	require.NoError(t, err)
	stored, err := h.store.GetTemplate(context.Background(), 1, KindParticipation)
	require.NoError(t, err)
	assert.Equal(t, TokenAttendeeName, stored.Fields[0].Value)
}

func TestNewCompositorValidates(t *testing.T) {
	_, err := NewCompositor(nil, &fakeFetcher{}, charMetrics{}, &recordingSink{}, Options{}, nil)
	assert.Error(t, err)
	_, err = NewCompositor(newMemStore(), &fakeFetcher{}, charMetrics{}, &recordingSink{}, Options{Page: PageSize{Width: -1, Height: 2}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
