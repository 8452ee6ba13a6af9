package certificate

import (
	"fmt"
	"strings"
)

// Kind 标识证书模板类型；同一活动下三种类型互相独立。
type Kind string

const (
	KindParticipation Kind = "participation"
	KindAwardee       Kind = "awardee"
	KindAttendance    Kind = "attendance"
)

// DefaultKind is used when a caller omits the template type.
const DefaultKind = KindParticipation

// Kinds returns every template kind in editor order.
func Kinds() []Kind {
	return []Kind{KindParticipation, KindAwardee, KindAttendance}
}

// ParseKind accepts an empty string as DefaultKind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return DefaultKind, nil
	case KindParticipation:
		return KindParticipation, nil
	case KindAwardee:
		return KindAwardee, nil
	case KindAttendance:
		return KindAttendance, nil
	default:
		return "", fmt.Errorf("%w: unknown template type %q", ErrInvalidInput, raw)
	}
}

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindParticipation, KindAwardee, KindAttendance:
		return true
	}
	return false
}

// Label 用于邮件标题与下载文件名，例如 "Certificate of Award"。
func (k Kind) Label() string {
	switch k {
	case KindAwardee:
		return "Award"
	case KindAttendance:
		return "Attendance"
	default:
		return "Participation"
	}
}

func (k Kind) String() string { return string(k) }
