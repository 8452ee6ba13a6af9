package errcode

import (
	"errors"
	"fmt"
	"testing"

	"certEngine/internal/certificate"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, OK},
		{fmt.Errorf("x: %w", certificate.ErrInvalidInput), InvalidInput},
		{&certificate.GenerationError{Step: certificate.StepAttendee, Err: certificate.ErrNotFound}, ResourceMissing},
		{certificate.ErrTemplateNotConfigured, ResourceMissing},
		{errors.New("boom"), SystemError},
	}
	for _, tc := range cases {
		if got := FromError(tc.err); got != tc.want {
			t.Fatalf("FromError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWorse(t *testing.T) {
	if got := Worse(OK, ResourceMissing); got != ResourceMissing {
		t.Fatalf("Worse(OK, ResourceMissing) = %d", got)
	}
	if got := Worse(SystemError, InvalidInput); got != SystemError {
		t.Fatalf("Worse(SystemError, InvalidInput) = %d", got)
	}
}
