package certificate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a request rejected before any store access.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned by record stores for absent attendees, events and templates.
	ErrNotFound = errors.New("record not found")
	// ErrAssetUnavailable means the background image could not be fetched or decoded.
	ErrAssetUnavailable = errors.New("background image unavailable")
	// ErrTemplateNotConfigured is only produced by compositors that require a stored template.
	ErrTemplateNotConfigured = errors.New("template not configured")
)

// Step names the compositor stage that failed.
type Step string

const (
	StepValidate   Step = "validate"
	StepAttendee   Step = "attendee"
	StepEvent      Step = "event"
	StepTemplate   Step = "template"
	StepBackground Step = "background"
	StepRender     Step = "render"
	StepSerialize  Step = "serialize"
)

// GenerationError 记录失败的步骤与触发的标识符，原始错误通过 Unwrap 保留。
type GenerationError struct {
	Step Step
	Ref  string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("generate certificate: %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("generate certificate: %s %q: %v", e.Step, e.Ref, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func stepError(step Step, ref string, err error) error {
	return &GenerationError{Step: step, Ref: ref, Err: err}
}

// FailedStep extracts the failing step, if err came from a compositor.
func FailedStep(err error) (Step, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Step, true
	}
	return "", false
}
