package certificate

import (
	"regexp"
	"strconv"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// FileName is the download name for a certificate: Certificate_<Name>.pdf.
// Runs of whitespace in the name become a single underscore.
func FileName(attendeeName string) string {
	return "Certificate_" + fileToken(attendeeName) + ".pdf"
}

// LabeledFileName adds the kind label: Certificate_<Label>_<Name>.pdf.
func LabeledFileName(kind Kind, attendeeName string) string {
	return "Certificate_" + kind.Label() + "_" + fileToken(attendeeName) + ".pdf"
}

func fileToken(name string) string {
	name = strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, name))
	if name == "" {
		return "Attendee"
	}
	return whitespaceRun.ReplaceAllString(name, "_")
}

// NameSet hands out file names that stay unique within one output
// (a zip archive or a directory). It is not safe for concurrent use.
type NameSet map[string]struct{}

// Claim returns name, or name suffixed with the attendee reference when an
// earlier attendee with the same display name already took it.
func (s NameSet) Claim(name, ref string) string {
	base := strings.TrimSuffix(name, ".pdf")
	candidate := name
	if _, dup := s[candidate]; dup {
		candidate = base + "_" + fileToken(ref) + ".pdf"
	}
	for n := 2; ; n++ {
		if _, dup := s[candidate]; !dup {
			break
		}
		candidate = base + "_" + fileToken(ref) + "_" + strconv.Itoa(n) + ".pdf"
	}
	s[candidate] = struct{}{}
	return candidate
}
