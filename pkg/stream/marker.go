package stream

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Marker is the structural chunk emitted before each file's text during
// a multiplexed generation run. It travels in-band with the generated
// text, so consumers must try ParseMarker on each chunk before treating
// it as raw text.
type Marker struct {
	Type     string    `json:"type"`
	FileID   uuid.UUID `json:"file_id"`
	Filename string    `json:"filename,omitempty"`
}

// Marker types.
const (
	MarkerScreenStart = "screen_start"
	MarkerScreenError = "screen_error"
)

// Encode renders the marker as a JSON object on its own line.
func (m Marker) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return "\n" + string(b) + "\n", nil
}

// ParseMarker attempts a strict parse of a chunk as a marker. Returns
// false for anything that is not exactly one JSON object with the
// marker's fields, so ordinary generated text (even text containing
// braces) is never misread as a marker.
func ParseMarker(chunk string) (Marker, bool) {
	trimmed := strings.TrimSpace(chunk)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return Marker{}, false
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var m Marker
	if err := dec.Decode(&m); err != nil {
		return Marker{}, false
	}
	// Reject trailing content after the object.
	if dec.More() {
		return Marker{}, false
	}

	if m.Type != MarkerScreenStart && m.Type != MarkerScreenError {
		return Marker{}, false
	}
	if m.FileID == uuid.Nil {
		return Marker{}, false
	}
	return m, true
}
