// Package store persists events, attendees and certificate templates.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"certEngine/internal/certificate"
	"certEngine/internal/database"
)

// Backend is the full persistence surface used by the API, the worker and the CLI.
type Backend interface {
	certificate.RecordStore
	PutTemplate(ctx context.Context, t certificate.Template) error
	ListAttendees(ctx context.Context, eventID uint) ([]certificate.Attendee, error)
}

// GormStore implements Backend on PostgreSQL (SQLite in tests).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// GetAttendee 按报名编号查询参会者。
func (s *GormStore) GetAttendee(ctx context.Context, referenceID string) (certificate.Attendee, error) {
	var row database.Attendee
	err := s.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&row).Error
	if err != nil {
		return certificate.Attendee{}, notFound(err, fmt.Sprintf("attendee %q", referenceID))
	}
	return toAttendee(row), nil
}

// ListAttendees returns every attendee of an event ordered by registration.
func (s *GormStore) ListAttendees(ctx context.Context, eventID uint) ([]certificate.Attendee, error) {
	var rows []database.Attendee
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list attendees of event %d: %w", eventID, err)
	}
	out := make([]certificate.Attendee, 0, len(rows))
	for _, r := range rows {
		out = append(out, toAttendee(r))
	}
	return out, nil
}

// GetEvent loads an event by id.
func (s *GormStore) GetEvent(ctx context.Context, id uint) (certificate.Event, error) {
	var row database.Event
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return certificate.Event{}, notFound(err, fmt.Sprintf("event %d", id))
	}
	return certificate.Event{
		ID:        row.ID,
		Name:      row.Name,
		Venue:     row.Venue,
		StartDate: row.StartDate,
		EndDate:   row.EndDate,
	}, nil
}

// GetTemplate loads the (event, kind) template.
func (s *GormStore) GetTemplate(ctx context.Context, eventID uint, kind certificate.Kind) (certificate.Template, error) {
	var row database.CertificateTemplate
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND template_type = ?", eventID, string(kind)).
		First(&row).Error
	if err != nil {
		return certificate.Template{}, notFound(err, fmt.Sprintf("template %d/%s", eventID, kind))
	}
	var fields []certificate.TextField
	if len(row.Fields) > 0 {
		if err := json.Unmarshal(row.Fields, &fields); err != nil {
			return certificate.Template{}, fmt.Errorf("decode template %d/%s fields: %w", eventID, kind, err)
		}
	}
	return certificate.Template{
		EventID:  row.EventID,
		Kind:     kind,
		ImageURL: row.ImageURL,
		Fields:   fields,
	}, nil
}

// PutTemplate 以整体替换的方式写入模板：首次保存时创建，之后覆盖图片与字段。
func (s *GormStore) PutTemplate(ctx context.Context, t certificate.Template) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown template type %q", certificate.ErrInvalidInput, t.Kind)
	}
	fields := t.Fields
	if fields == nil {
		fields = []certificate.TextField{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode template fields: %w", err)
	}
	row := database.CertificateTemplate{
		EventID:      t.EventID,
		TemplateType: string(t.Kind),
		ImageURL:     t.ImageURL,
		Fields:       datatypes.JSON(raw),
	}
	row.UpdatedAt = time.Now()
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "template_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"image_url", "fields", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save template %d/%s: %w", t.EventID, t.Kind, err)
	}
	return nil
}

func toAttendee(r database.Attendee) certificate.Attendee {
	return certificate.Attendee{
		ID:           r.ID,
		ReferenceID:  r.ReferenceID,
		PersonalName: r.PersonalName,
		MiddleName:   r.MiddleName,
		LastName:     r.LastName,
		Email:        r.Email,
		EventID:      r.EventID,
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, certificate.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
