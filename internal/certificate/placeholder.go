package certificate

import (
	"strings"
	"time"
)

// Placeholder tokens recognised inside TextField.Value.
const (
	TokenAttendeeName = "{{attendee_name}}"
	TokenEventName    = "{{event_name}}"
	TokenEventDate    = "{{event_date}}"
	TokenEventVenue   = "{{event_venue}}"
)

// DefaultVenue is printed when an event has no venue on record.
const DefaultVenue = "Philippines"

// RenderContext holds the substitution values for one attendee of one event.
type RenderContext struct {
	AttendeeName string
	EventName    string
	EventDate    string
	EventVenue   string
}

// SampleContext is what the editor shows in preview mode.
var SampleContext = RenderContext{
	AttendeeName: "Juan Dela Cruz",
	EventName:    "Sample Conference 2024",
	EventDate:    "October 16-18, 2024",
	EventVenue:   "Manila, Philippines",
}

// NewRenderContext builds the per-document values from the attendee and event records.
func NewRenderContext(a Attendee, e Event) RenderContext {
	venue := strings.TrimSpace(e.Venue)
	if venue == "" {
		venue = DefaultVenue
	}
	return RenderContext{
		AttendeeName: a.FullName(),
		EventName:    e.Name,
		EventDate:    FormatEventDate(e.StartDate, e.EndDate),
		EventVenue:   venue,
	}
}

// Substitute replaces every occurrence of the four tokens in value.
// Replacement happens in a single left-to-right pass, so substituted values are
// never rescanned and token order does not matter. Unknown {{...}} sequences
// pass through untouched.
func Substitute(value string, rc RenderContext) string {
	if !strings.Contains(value, "{{") {
		return value
	}
	r := strings.NewReplacer(
		TokenAttendeeName, rc.AttendeeName,
		TokenEventName, rc.EventName,
		TokenEventDate, rc.EventDate,
		TokenEventVenue, rc.EventVenue,
	)
	return r.Replace(value)
}

const (
	longDate = "January 2, 2006"
	monthDay = "January 2"
	dayOnly  = "2"
	yearOnly = "2006"
	rangeSep = "-"
)

// FormatEventDate renders an event's calendar span:
//
//	same day:              "October 16, 2024"
//	same month and year:   "October 16-18, 2024"
//	same year:             "October 30-November 2, 2024"
//	different years:       "December 30, 2024-January 2, 2025"
//
// A zero end date is treated as a single-day event; a zero start date yields "".
// An end date earlier than the start date is taken as swapped input.
func FormatEventDate(start, end time.Time) string {
	if start.IsZero() {
		if end.IsZero() {
			return ""
		}
		return end.Format(longDate)
	}
	if end.IsZero() || sameDay(start, end) {
		return start.Format(longDate)
	}
	if end.Before(start) {
		start, end = end, start
	}
	switch {
	case start.Year() == end.Year() && start.Month() == end.Month():
		return start.Format(monthDay) + rangeSep + end.Format(dayOnly) + ", " + end.Format(yearOnly)
	case start.Year() == end.Year():
		return start.Format(monthDay) + rangeSep + end.Format(monthDay) + ", " + end.Format(yearOnly)
	default:
		return start.Format(longDate) + rangeSep + end.Format(longDate)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
