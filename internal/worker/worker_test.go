package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"certEngine/internal/batch"
	"certEngine/internal/certificate"
	"certEngine/internal/editor"
	"certEngine/internal/errcode"
	"certEngine/internal/fonts"
	"certEngine/internal/tasks"
)

type published struct {
	channel string
	msg     CertificateNotifyMessage
}

type fakePublisher struct {
	messages []published
}

func (p *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	var msg CertificateNotifyMessage
	if err := json.Unmarshal(message.([]byte), &msg); err != nil {
		return redis.NewIntResult(0, err)
	}
	p.messages = append(p.messages, published{channel: channel, msg: msg})
	return redis.NewIntResult(1, nil)
}

type fakeUploader struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: map[string][]byte{}, types: map[string]string{}}
}

func (u *fakeUploader) UploadFile(_ context.Context, name string, r io.Reader, _ int64, contentType string) (*minio.UploadInfo, error) {
	if u.err != nil {
		return nil, u.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	u.objects[name] = data
	u.types[name] = contentType
	return &minio.UploadInfo{Key: name, Size: int64(len(data))}, nil
}

// fakeGenerator 按参考号返回预设的证书或错误。
type fakeGenerator struct {
	eventOf map[string]uint
	errs    map[string]error
	calls   []string
}

func (g *fakeGenerator) Generate(_ context.Context, ref string, kind certificate.Kind) (*certificate.Certificate, error) {
	g.calls = append(g.calls, ref)
	if err := g.errs[ref]; err != nil {
		return nil, err
	}
	return &certificate.Certificate{
		Bytes:    []byte("%PDF-" + ref),
		FileName: "Certificate_" + ref + ".pdf",
		Kind:     kind,
		Event:    certificate.Event{ID: g.eventOf[ref]},
		Template: certificate.ResolvedTemplate{FieldsFallback: certificate.FallbackMissing, ImageFallback: certificate.FallbackMissing},
	}, nil
}

type fakeLister []certificate.Attendee

func (l fakeLister) ListAttendees(context.Context, uint) ([]certificate.Attendee, error) {
	return l, nil
}

func batchTask(t *testing.T, p tasks.CertificateBatchPayload) *asynq.Task {
	t.Helper()
	task, err := tasks.NewCertificateBatchTask(p)
	if err != nil {
		t.Fatalf("NewCertificateBatchTask: %v", err)
	}
	return task
}

func TestBatchTaskHandlerIsolatesFailures(t *testing.T) {
	gen := &fakeGenerator{
		eventOf: map[string]uint{"A": 9, "C": 4},
		errs:    map[string]error{"B": &certificate.GenerationError{Step: certificate.StepAttendee, Ref: "B", Err: certificate.ErrNotFound}},
	}
	uploads := newFakeUploader()
	pub := &fakePublisher{}
	h := NewBatchTaskHandler(batch.NewDriver(gen, 0, nil), fakeLister{}, uploads, pub, nil)

	task := batchTask(t, tasks.CertificateBatchPayload{EventID: 9, Kind: certificate.KindAwardee, ReferenceIDs: []string{"A", "B", "C"}, CorrelationID: "cid"})
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	if len(gen.calls) != 3 {
		t.Fatalf("generator calls = %v, want all three", gen.calls)
	}
	key := "certificates/9/awardee/A/Certificate_A.pdf"
	if len(uploads.objects) != 1 || string(uploads.objects[key]) != "%PDF-A" {
		t.Fatalf("uploads = %v, want only %q", uploads.objects, key)
	}
	if uploads.types[key] != "application/pdf" {
		t.Fatalf("content type = %q", uploads.types[key])
	}

	if len(pub.messages) != 4 {
		t.Fatalf("published %d messages, want 4", len(pub.messages))
	}
	for _, p := range pub.messages {
		if p.channel != "event_notify:9" {
			t.Fatalf("channel = %q", p.channel)
		}
	}
	a, b, c, summary := pub.messages[0].msg, pub.messages[1].msg, pub.messages[2].msg, pub.messages[3].msg
	if a.Status != StatusGenerated || a.ObjectKey != key || a.ErrorCode != errcode.OK || a.ErrorMessage != "" || len(a.Fallbacks) != 2 {
		t.Fatalf("A notification = %+v", a)
	}
	if b.Status != StatusFailed || b.ErrorCode != errcode.ResourceMissing || b.ReferenceID != "B" {
		t.Fatalf("B notification = %+v", b)
	}
	if c.Status != StatusFailed || c.ErrorCode != errcode.InvalidInput {
		t.Fatalf("C notification = %+v", c)
	}
	if summary.Status != StatusCompleted || summary.Total != 3 || summary.Succeeded != 1 || summary.Failed != 2 || summary.CorrelationID != "cid" {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.ErrorCode != errcode.ResourceMissing {
		t.Fatalf("summary error code = %d, want the worst item code %d", summary.ErrorCode, errcode.ResourceMissing)
	}
}

func TestBatchTaskHandlerSummaryReportsWorstCode(t *testing.T) {
	gen := &fakeGenerator{
		eventOf: map[string]uint{"C": 9},
		errs:    map[string]error{
			"A": &certificate.GenerationError{Step: certificate.StepAttendee, Ref: "A", Err: certificate.ErrNotFound},
			"B": &certificate.GenerationError{Step: certificate.StepRender, Ref: "B", Err: errors.New("font face")},
		},
	}
	pub := &fakePublisher{}
	h := NewBatchTaskHandler(batch.NewDriver(gen, 0, nil), fakeLister{}, newFakeUploader(), pub, nil)

	task := batchTask(t, tasks.CertificateBatchPayload{EventID: 9, Kind: certificate.KindParticipation, ReferenceIDs: []string{"A", "B", "C"}})
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(pub.messages) != 4 {
		t.Fatalf("published %d messages, want 4", len(pub.messages))
	}
	if got := pub.messages[1].msg.ErrorCode; got != errcode.SystemError {
		t.Fatalf("B error code = %d", got)
	}
	summary := pub.messages[3].msg
	if summary.Failed != 2 || summary.ErrorCode != errcode.SystemError {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestBatchTaskHandlerListsAttendeesWhenNoRefs(t *testing.T) {
	gen := &fakeGenerator{eventOf: map[string]uint{"X": 2, "Y": 2}}
	uploads := newFakeUploader()
	pub := &fakePublisher{}
	lister := fakeLister{{ReferenceID: "X", EventID: 2}, {ReferenceID: "Y", EventID: 2}}
	h := NewBatchTaskHandler(batch.NewDriver(gen, 0, nil), lister, uploads, pub, nil)

	if err := h.ProcessTask(context.Background(), batchTask(t, tasks.CertificateBatchPayload{EventID: 2, Kind: certificate.KindParticipation})); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(gen.calls) != 2 || gen.calls[0] != "X" || gen.calls[1] != "Y" {
		t.Fatalf("generator calls = %v", gen.calls)
	}
	if len(uploads.objects) != 2 {
		t.Fatalf("uploads = %d, want 2", len(uploads.objects))
	}
}

func TestBatchTaskHandlerStopsOnUploadError(t *testing.T) {
	gen := &fakeGenerator{eventOf: map[string]uint{"A": 1, "B": 1}}
	uploads := newFakeUploader()
	uploads.err = errors.New("minio down")
	pub := &fakePublisher{}
	h := NewBatchTaskHandler(batch.NewDriver(gen, 0, nil), fakeLister{}, uploads, pub, nil)

	err := h.ProcessTask(context.Background(), batchTask(t, tasks.CertificateBatchPayload{EventID: 1, Kind: certificate.KindAttendance, ReferenceIDs: []string{"A", "B"}}))
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(gen.calls) != 1 {
		t.Fatalf("generator calls = %v, want the run to stop after A", gen.calls)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("published %d messages before the final attempt", len(pub.messages))
	}
}

func TestBatchTaskHandlerSkipsMalformedPayload(t *testing.T) {
	h := NewBatchTaskHandler(batch.NewDriver(&fakeGenerator{}, 0, nil), fakeLister{}, newFakeUploader(), &fakePublisher{}, nil)
	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeCertificateBatch, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}

type anyImage []byte

func (b anyImage) FetchBytes(context.Context, string) ([]byte, error) { return b, nil }

func TestTemplatePreviewHandler(t *testing.T) {
	fam, err := fonts.Default()
	if err != nil {
		t.Fatalf("fonts.Default: %v", err)
	}
	var bg bytes.Buffer
	if err := png.Encode(&bg, image.NewNRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode: %v", err)
	}

	page := certificate.CanonicalPage
	resolver := certificate.NewTemplateResolver(nil, page, "", nil)
	uploads := newFakeUploader()
	pub := &fakePublisher{}
	h := NewTemplatePreviewHandler(resolver, editor.NewCanvas(page, fam, fam), anyImage(bg.Bytes()), uploads, pub, nil)

	task, err := tasks.NewTemplatePreviewTask(5, certificate.KindAwardee, "cid")
	if err != nil {
		t.Fatalf("NewTemplatePreviewTask: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	data, ok := uploads.objects["thumbnails/template/5/awardee.png"]
	if !ok {
		t.Fatalf("thumbnail not uploaded: %v", uploads.objects)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfg.Width != 421 {
		t.Fatalf("thumbnail width = %d, want 421", cfg.Width)
	}
	if len(pub.messages) != 1 || pub.messages[0].msg.Status != StatusPreviewReady {
		t.Fatalf("messages = %+v", pub.messages)
	}
}
