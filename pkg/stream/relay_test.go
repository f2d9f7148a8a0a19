package stream

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRelay(t *testing.T) (*Relay, *httptest.ResponseRecorder, context.CancelFunc) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/stream", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	relay, err := NewRelay(rec, req, zap.NewNop())
	require.NoError(t, err)
	return relay, rec, cancel
}

func TestRelay_PreservesWriteOrder(t *testing.T) {
	relay, rec, cancel := newTestRelay(t)
	defer cancel()

	var want string
	for i := 0; i < 50; i++ {
		chunk := fmt.Sprintf("chunk-%d ", i)
		want += chunk
		relay.Write(chunk)
	}

	assert.Equal(t, want, rec.Body.String())
}

func TestRelay_SetsStreamingHeaders(t *testing.T) {
	relay, rec, cancel := newTestRelay(t)
	defer cancel()
	relay.Write("x")

	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestRelay_DropsWritesAfterDisconnect(t *testing.T) {
	relay, rec, cancel := newTestRelay(t)

	relay.Write("before")
	cancel()

	// The watcher flips the flag asynchronously.
	require.Eventually(t, relay.Closed, time.Second, 5*time.Millisecond)

	relay.Write("after")
	assert.Equal(t, "before", rec.Body.String())
}

func TestRelay_WriteMarker(t *testing.T) {
	relay, rec, cancel := newTestRelay(t)
	defer cancel()

	fileID := uuid.New()
	relay.WriteMarker(Marker{Type: MarkerScreenStart, FileID: fileID, Filename: "login.png"})
	relay.Write("generated text")

	body := rec.Body.String()
	assert.Contains(t, body, fileID.String())
	assert.Contains(t, body, "generated text")
}

func TestParseMarker_RoundTrip(t *testing.T) {
	m := Marker{Type: MarkerScreenStart, FileID: uuid.New(), Filename: "home.png"}
	encoded, err := m.Encode()
	require.NoError(t, err)

	parsed, ok := ParseMarker(encoded)
	require.True(t, ok)
	assert.Equal(t, m, parsed)
}

func TestParseMarker_RejectsPlainText(t *testing.T) {
	_, ok := ParseMarker("The login screen validates credentials.")
	assert.False(t, ok)
}

func TestParseMarker_RejectsTextWithBraces(t *testing.T) {
	_, ok := ParseMarker(`The payload looks like {"count": 3} in practice.`)
	assert.False(t, ok)
}

func TestParseMarker_RejectsUnknownFields(t *testing.T) {
	_, ok := ParseMarker(`{"type": "screen_start", "file_id": "` + uuid.NewString() + `", "extra": true}`)
	assert.False(t, ok)
}

func TestParseMarker_RejectsUnknownType(t *testing.T) {
	_, ok := ParseMarker(`{"type": "mystery", "file_id": "` + uuid.NewString() + `"}`)
	assert.False(t, ok)
}

func TestParseMarker_RejectsMissingFileID(t *testing.T) {
	_, ok := ParseMarker(`{"type": "screen_start"}`)
	assert.False(t, ok)
}
