// Package llm provides clients for the model backends driving document
// generation: a multimodal backend for screenshot analysis and a
// long-context text backend for narrative generation, plus speech-to-text
// for narration audio.
package llm

import (
	"context"
	"io"
)

// ImageInput is one image attached to a multimodal request.
type ImageInput struct {
	MediaType string // e.g. "image/png"
	Data      []byte
}

// DeltaFunc receives incremental text as the model produces it. A
// non-nil error aborts the stream.
type DeltaFunc func(delta string) error

// VisionClient generates text from prompts that include screenshots.
// Use this interface for dependency injection to enable mocking in tests.
type VisionClient interface {
	// GenerateVision runs a multimodal completion and returns the full
	// response text.
	GenerateVision(ctx context.Context, prompt string, images []ImageInput) (string, error)

	// StreamVision runs a multimodal completion, invoking onDelta for
	// each text fragment, and returns the accumulated response.
	StreamVision(ctx context.Context, prompt string, images []ImageInput, onDelta DeltaFunc) (string, error)
}

// TextClient generates text from text-only prompts.
type TextClient interface {
	Generate(ctx context.Context, systemMessage string, prompt string) (string, error)

	// Stream invokes onDelta for each fragment and returns the
	// accumulated response.
	Stream(ctx context.Context, systemMessage string, prompt string, onDelta DeltaFunc) (string, error)
}

// Transcriber converts narration audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}
