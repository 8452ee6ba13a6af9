package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"certEngine/internal/certificate"
)

func TestObserveCertificate(t *testing.T) {
	kind := certificate.KindAttendance
	beforeOK := testutil.ToFloat64(certificatesTotal.WithLabelValues(string(kind), "ok"))
	beforeBG := testutil.ToFloat64(certificatesTotal.WithLabelValues(string(kind), string(certificate.StepBackground)))
	beforeFallback := testutil.ToFloat64(templateFallbacks.WithLabelValues(string(kind), "fields", string(certificate.FallbackMissing)))

	cert := &certificate.Certificate{Kind: kind, Template: certificate.ResolvedTemplate{
		FieldsFallback: certificate.FallbackMissing,
		ImageFallback:  certificate.FallbackMissing,
	}}
	ObserveCertificate(kind, cert, nil, 10*time.Millisecond)
	ObserveCertificate(kind, nil, &certificate.GenerationError{Step: certificate.StepBackground, Err: errors.New("x")}, time.Millisecond)

	if got := testutil.ToFloat64(certificatesTotal.WithLabelValues(string(kind), "ok")); got != beforeOK+1 {
		t.Fatalf("ok counter = %v, want %v", got, beforeOK+1)
	}
	if got := testutil.ToFloat64(certificatesTotal.WithLabelValues(string(kind), string(certificate.StepBackground))); got != beforeBG+1 {
		t.Fatalf("background counter = %v, want %v", got, beforeBG+1)
	}
	if got := testutil.ToFloat64(templateFallbacks.WithLabelValues(string(kind), "fields", string(certificate.FallbackMissing))); got != beforeFallback+1 {
		t.Fatalf("fallback counter = %v, want %v", got, beforeFallback+1)
	}
}
