package certificate

import "math"

// DefaultBackgroundRef points at the bundled background shared by every event and kind.
const DefaultBackgroundRef = "bundled:certificate-template.png"

var defaultFields = map[Kind][]TextField{
	KindParticipation: {
		{ID: "name", Label: "Attendee Name", Value: TokenAttendeeName, X: 421, Y: 335, FontSize: 36, FontWeight: WeightBold, Color: "#2C3E50", Align: AlignCenter},
		{ID: "event", Label: "Event Name", Value: "for having attended the " + TokenEventName, X: 421, Y: 275, FontSize: 14, FontWeight: WeightNormal, Color: "#34495E", Align: AlignCenter},
		{ID: "date", Label: "Event Date", Value: "conducted on " + TokenEventDate + " at " + TokenEventVenue, X: 421, Y: 250, FontSize: 14, FontWeight: WeightNormal, Color: "#34495E", Align: AlignCenter},
	},
	KindAwardee: {
		{ID: "name", Label: "Awardee Name", Value: TokenAttendeeName, X: 421, Y: 335, FontSize: 40, FontWeight: WeightBold, Color: "#C0392B", Align: AlignCenter},
		{ID: "award", Label: "Award Title", Value: "Outstanding Achievement Award", X: 421, Y: 275, FontSize: 18, FontWeight: WeightBold, Color: "#8E44AD", Align: AlignCenter},
		{ID: "event", Label: "Event Name", Value: "at " + TokenEventName, X: 421, Y: 245, FontSize: 14, FontWeight: WeightNormal, Color: "#34495E", Align: AlignCenter},
	},
	KindAttendance: {
		{ID: "name", Label: "Attendee Name", Value: TokenAttendeeName, X: 421, Y: 335, FontSize: 36, FontWeight: WeightBold, Color: "#2C3E50", Align: AlignCenter},
		{ID: "event", Label: "Event Name", Value: "attended " + TokenEventName, X: 421, Y: 275, FontSize: 14, FontWeight: WeightNormal, Color: "#34495E", Align: AlignCenter},
		{ID: "date", Label: "Event Date", Value: "on " + TokenEventDate, X: 421, Y: 250, FontSize: 14, FontWeight: WeightNormal, Color: "#34495E", Align: AlignCenter},
	},
}

// DefaultFields returns a fresh copy of the built-in fields for kind, rescaled
// from CanonicalPage to page: x by the width ratio, y by the height ratio and
// font size by the smaller of the two. Unknown kinds get the participation set.
func DefaultFields(kind Kind, page PageSize) []TextField {
	src, ok := defaultFields[kind]
	if !ok {
		src = defaultFields[KindParticipation]
	}
	out := CloneFields(src)
	if page == CanonicalPage || page.Validate() != nil {
		return out
	}
	sx := page.Width / CanonicalPage.Width
	sy := page.Height / CanonicalPage.Height
	sf := math.Min(sx, sy)
	for i := range out {
		out[i].X *= sx
		out[i].Y *= sy
		out[i].FontSize *= sf
	}
	return out
}

// NewField is what the editor appends: centred, mid-page, regular weight.
func NewField(id string, page PageSize) TextField {
	return TextField{
		ID:         id,
		Label:      "New Field",
		Value:      "Sample Text",
		X:          page.Width / 2,
		Y:          page.Height / 2,
		FontSize:   16,
		FontWeight: WeightNormal,
		Color:      "#000000",
		Align:      AlignCenter,
	}
}
