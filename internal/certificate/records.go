package certificate

import (
	"context"
	"strings"
	"time"
)

// Attendee is the subset of an attendee record the compositor reads.
type Attendee struct {
	ID           uint
	ReferenceID  string
	PersonalName string
	MiddleName   string
	LastName     string
	Email        string
	EventID      uint
}

// FullName is the certificate name: given name and family name only.
// The middle name is never printed.
func (a Attendee) FullName() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{a.PersonalName, a.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Event is the subset of an event record the compositor reads.
// StartDate and EndDate carry calendar dates; their clock part is ignored.
type Event struct {
	ID        uint
	Name      string
	Venue     string
	StartDate time.Time
	EndDate   time.Time
}

// Template is the persisted (eventId, kind) record.
type Template struct {
	EventID  uint
	Kind     Kind
	ImageURL string
	Fields   []TextField
}

// TemplateReader looks up a stored template. Implementations return ErrNotFound
// (possibly wrapped) when nothing is stored for the pair.
type TemplateReader interface {
	GetTemplate(ctx context.Context, eventID uint, kind Kind) (Template, error)
}

// TemplateStore adds the full-replace write used by the editor.
type TemplateStore interface {
	TemplateReader
	PutTemplate(ctx context.Context, t Template) error
}

// RecordStore is everything the compositor needs from persistence.
type RecordStore interface {
	TemplateReader
	GetAttendee(ctx context.Context, referenceID string) (Attendee, error)
	GetEvent(ctx context.Context, id uint) (Event, error)
}
