package llm

import (
	"context"
	"io"
)

// MockVisionClient is a configurable mock for testing multimodal flows.
// Set the function fields to control behavior in tests.
type MockVisionClient struct {
	// GenerateVisionFunc is called when GenerateVision is invoked.
	// If nil, returns empty string and nil error.
	GenerateVisionFunc func(ctx context.Context, prompt string, images []ImageInput) (string, error)

	// StreamVisionFunc is called when StreamVision is invoked. If nil,
	// the mock streams StreamChunks through onDelta and returns their
	// concatenation.
	StreamVisionFunc func(ctx context.Context, prompt string, images []ImageInput, onDelta DeltaFunc) (string, error)

	// StreamChunks are fed to onDelta by the default StreamVision.
	StreamChunks []string

	// Call tracking for verification
	GenerateVisionCalls int
	StreamVisionCalls   int
}

func (m *MockVisionClient) GenerateVision(ctx context.Context, prompt string, images []ImageInput) (string, error) {
	m.GenerateVisionCalls++
	if m.GenerateVisionFunc != nil {
		return m.GenerateVisionFunc(ctx, prompt, images)
	}
	return "", nil
}

func (m *MockVisionClient) StreamVision(ctx context.Context, prompt string, images []ImageInput, onDelta DeltaFunc) (string, error) {
	m.StreamVisionCalls++
	if m.StreamVisionFunc != nil {
		return m.StreamVisionFunc(ctx, prompt, images, onDelta)
	}
	return playChunks(m.StreamChunks, onDelta)
}

// MockTextClient is a configurable mock for testing text generation.
type MockTextClient struct {
	// GenerateFunc is called when Generate is invoked. If nil, returns
	// empty string and nil error.
	GenerateFunc func(ctx context.Context, systemMessage string, prompt string) (string, error)

	// StreamFunc is called when Stream is invoked. If nil, the mock
	// streams StreamChunks through onDelta and returns their
	// concatenation.
	StreamFunc func(ctx context.Context, systemMessage string, prompt string, onDelta DeltaFunc) (string, error)

	// StreamChunks are fed to onDelta by the default Stream.
	StreamChunks []string

	// Call tracking for verification
	GenerateCalls int
	StreamCalls   int

	// Prompts records every prompt passed to Generate or Stream.
	Prompts []string
}

func (m *MockTextClient) Generate(ctx context.Context, systemMessage string, prompt string) (string, error) {
	m.GenerateCalls++
	m.Prompts = append(m.Prompts, prompt)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, systemMessage, prompt)
	}
	return "", nil
}

func (m *MockTextClient) Stream(ctx context.Context, systemMessage string, prompt string, onDelta DeltaFunc) (string, error) {
	m.StreamCalls++
	m.Prompts = append(m.Prompts, prompt)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, systemMessage, prompt, onDelta)
	}
	return playChunks(m.StreamChunks, onDelta)
}

// MockTranscriber is a configurable mock for speech-to-text.
type MockTranscriber struct {
	// TranscribeFunc is called when Transcribe is invoked. If nil,
	// returns Text and nil error.
	TranscribeFunc func(ctx context.Context, filename string, audio io.Reader) (string, error)

	Text string

	TranscribeCalls int
}

func (m *MockTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	m.TranscribeCalls++
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, filename, audio)
	}
	return m.Text, nil
}

func playChunks(chunks []string, onDelta DeltaFunc) (string, error) {
	var full string
	for _, chunk := range chunks {
		full += chunk
		if err := onDelta(chunk); err != nil {
			return full, err
		}
	}
	return full, nil
}

var (
	_ VisionClient = (*MockVisionClient)(nil)
	_ TextClient   = (*MockTextClient)(nil)
	_ Transcriber  = (*MockTranscriber)(nil)
)
