package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event 表示一次活动；证书上的活动名称、日期与地点均来自这里。
type Event struct {
	gorm.Model
	Name      string    `gorm:"size:255"`
	Venue     string    `gorm:"size:255"`
	StartDate time.Time `gorm:"type:date"`
	EndDate   time.Time `gorm:"type:date"`
}

// Attendee 表示活动报名者。ReferenceID 是对外暴露的报名编号。
type Attendee struct {
	gorm.Model
	ReferenceID  string `gorm:"uniqueIndex;size:64"`
	PersonalName string `gorm:"size:128"`
	MiddleName   string `gorm:"size:128"`
	LastName     string `gorm:"size:128"`
	Email        string `gorm:"size:255"`
	EventID      uint   `gorm:"index"`
	Event        Event  `gorm:"constraint:OnDelete:CASCADE"`
}

// CertificateTemplate stores one (event, kind) certificate design.
type CertificateTemplate struct {
	gorm.Model
	EventID      uint           `gorm:"uniqueIndex:idx_event_template_type"`
	TemplateType string         `gorm:"size:32;uniqueIndex:idx_event_template_type"`
	ImageURL     string         `gorm:"size:1024"`
	Fields       datatypes.JSON `gorm:"type:jsonb"` // ordered []certificate.TextField
	Event        Event          `gorm:"constraint:OnDelete:CASCADE"`
}
