package certificate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"
)

// charMetrics gives every rune the same advance: half the size, 0.6 when bold.
type charMetrics struct{}

func (charMetrics) WidthOf(text string, size float64, weight FontWeight) float64 {
	per := 0.5
	if weight == WeightBold {
		per = 0.6
	}
	return float64(utf8.RuneCountInString(text)) * size * per
}

type templateKey struct {
	event uint
	kind  Kind
}

type memStore struct {
	mu        sync.Mutex
	attendees map[string]Attendee
	events    map[uint]Event
	templates map[templateKey]Template
	readErr   error
}

func newMemStore() *memStore {
	return &memStore{
		attendees: map[string]Attendee{},
		events:    map[uint]Event{},
		templates: map[templateKey]Template{},
	}
}

func (s *memStore) GetAttendee(_ context.Context, ref string) (Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendees[ref]
	if !ok {
		return Attendee{}, fmt.Errorf("attendee %q: %w", ref, ErrNotFound)
	}
	return a, nil
}

func (s *memStore) GetEvent(_ context.Context, id uint) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return Event{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return e, nil
}

func (s *memStore) GetTemplate(_ context.Context, eventID uint, kind Kind) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return Template{}, s.readErr
	}
	t, ok := s.templates[templateKey{eventID, kind}]
	if !ok {
		return Template{}, ErrNotFound
	}
	t.Fields = CloneFields(t.Fields)
	return t, nil
}

func (s *memStore) PutTemplate(_ context.Context, t Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Fields = CloneFields(t.Fields)
	s.templates[templateKey{t.EventID, t.Kind}] = t
	return nil
}

type fakeFetcher struct {
	mu   sync.Mutex
	refs []string
	fail map[string]error
}

func (f *fakeFetcher) FetchBytes(_ context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref)
	if err := f.fail[ref]; err != nil {
		return nil, err
	}
	return []byte("img:" + ref), nil
}

type imageCall struct {
	img        string
	x, y, w, h float64
}

type recordingDoc struct {
	page   PageSize
	images []imageCall
	texts  []TextOp
}

func (d *recordingDoc) DrawImage(img []byte, x, y, w, h float64) error {
	if len(img) == 0 {
		return errors.New("empty image")
	}
	d.images = append(d.images, imageCall{string(img), x, y, w, h})
	return nil
}

func (d *recordingDoc) DrawText(op TextOp) error {
	d.texts = append(d.texts, op)
	return nil
}

func (d *recordingDoc) Bytes() ([]byte, error) {
	return []byte(fmt.Sprintf("%%PDF images=%d texts=%d", len(d.images), len(d.texts))), nil
}

type recordingSink struct {
	docs []*recordingDoc
}

func (s *recordingSink) NewDocument(page PageSize) (Document, error) {
	d := &recordingDoc{page: page}
	s.docs = append(s.docs, d)
	return d, nil
}

func (s *recordingSink) last() *recordingDoc {
	return s.docs[len(s.docs)-1]
}
