package tasks

import (
	"encoding/json"
	"errors"
	"testing"

	"certEngine/internal/certificate"
)

func TestNewCertificateBatchTask(t *testing.T) {
	task, err := NewCertificateBatchTask(CertificateBatchPayload{
		EventID:       7,
		Kind:          certificate.KindAwardee,
		ReferenceIDs:  []string{"A", "B"},
		CorrelationID: "cid",
	})
	if err != nil {
		t.Fatalf("NewCertificateBatchTask: %v", err)
	}
	if task.Type() != TypeCertificateBatch {
		t.Fatalf("type = %q", task.Type())
	}
	var got CertificateBatchPayload
	if err := json.Unmarshal(task.Payload(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventID != 7 || got.Kind != certificate.KindAwardee || len(got.ReferenceIDs) != 2 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestNewCertificateBatchTaskRejectsBadInput(t *testing.T) {
	cases := []CertificateBatchPayload{
		{Kind: certificate.KindAwardee},
		{EventID: 1, Kind: "diploma"},
	}
	for _, p := range cases {
		if _, err := NewCertificateBatchTask(p); !errors.Is(err, certificate.ErrInvalidInput) {
			t.Fatalf("payload %+v: err = %v, want ErrInvalidInput", p, err)
		}
	}
}
