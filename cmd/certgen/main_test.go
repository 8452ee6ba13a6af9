package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certEngine/internal/batch"
	"certEngine/internal/certificate"
)

type rosterStub map[uint][]certificate.Attendee

func (r rosterStub) ListAttendees(_ context.Context, eventID uint) ([]certificate.Attendee, error) {
	return r[eventID], nil
}

func TestResolveRefs(t *testing.T) {
	roster := rosterStub{7: {{ReferenceID: "A"}, {ReferenceID: "B"}}}
	ctx := context.Background()

	refs, err := resolveRefs(ctx, roster, " X, ,Y ", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, refs)

	refs, err = resolveRefs(ctx, roster, "", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, refs)

	_, err = resolveRefs(ctx, roster, "", 0)
	assert.Error(t, err)

	_, err = resolveRefs(ctx, roster, "", 8)
	assert.ErrorContains(t, err, "no attendees")
}

func TestFileSinkKeepsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	sink := fileSink(dir, false, &stdout, &stderr)
	ctx := context.Background()

	items := []batch.Item{
		{ReferenceID: "REF-1", Certificate: &certificate.Certificate{Bytes: []byte("first"), FileName: "Certificate_Juan_Dela_Cruz.pdf"}},
		{ReferenceID: "REF-2", Certificate: &certificate.Certificate{Bytes: []byte("second"), FileName: "Certificate_Juan_Dela_Cruz.pdf"}},
		{ReferenceID: "REF-3", Err: errors.New("attendee not found")},
	}
	for _, item := range items {
		require.NoError(t, sink(ctx, item))
	}

	first, err := os.ReadFile(filepath.Join(dir, "Certificate_Juan_Dela_Cruz.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(first))
	second, err := os.ReadFile(filepath.Join(dir, "Certificate_Juan_Dela_Cruz_REF-2.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(second))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Contains(t, stderr.String(), "REF-3\tFAILED")
}
