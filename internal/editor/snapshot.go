package editor

import "certEngine/internal/certificate"

// FieldView is a field with the text currently shown and its canvas-space box.
type FieldView struct {
	certificate.TextField
	Display string          `json:"display"`
	Box     certificate.Box `json:"box"`
}

// Snapshot is the full observable state of a session.
type Snapshot struct {
	EventID  uint                      `json:"eventId"`
	Kind     certificate.Kind          `json:"kind"`
	Page     certificate.PageSize      `json:"page"`
	Image    string                    `json:"image"`
	Stored   bool                      `json:"stored"`
	Dirty    bool                      `json:"dirty"`
	Fields   []FieldView               `json:"fields"`
	Selected string                    `json:"selected,omitempty"`
	Dragging bool                      `json:"dragging"`
	Preview  bool                      `json:"preview"`
	Viewport Viewport                  `json:"viewport"`
	Staged   map[certificate.Kind]bool `json:"staged"`
}

// Snapshot captures the current state for display.
func (s *Session) Snapshot() Snapshot {
	d := s.drafts[s.kind]
	views := make([]FieldView, 0, len(d.Fields))
	for _, f := range d.Fields {
		text := s.displayText(f)
		views = append(views, FieldView{
			TextField: f,
			Display:   text,
			Box:       certificate.FieldBox(f, text, s.metrics),
		})
	}
	staged := make(map[certificate.Kind]bool, len(s.drafts))
	for k, dk := range s.drafts {
		staged[k] = dk.Image != ""
	}
	return Snapshot{
		EventID:  s.eventID,
		Kind:     s.kind,
		Page:     s.page,
		Image:    d.Image,
		Stored:   d.Stored,
		Dirty:    d.Dirty,
		Fields:   views,
		Selected: s.selected,
		Dragging: s.drag != nil,
		Preview:  s.preview,
		Viewport: s.viewport,
		Staged:   staged,
	}
}
