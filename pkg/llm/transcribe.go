package llm

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// WhisperTranscriber converts narration audio to text using the Whisper
// transcription endpoint.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewWhisperTranscriber creates a transcriber for the given Whisper model.
func NewWhisperTranscriber(apiKey, model string, logger *zap.Logger) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		model = "whisper-1"
	}

	return &WhisperTranscriber{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger.Named("llm.whisper"),
	}, nil
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	t.logger.Debug("transcription request", zap.String("filename", filename))

	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		t.logger.Error("transcription failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", ClassifyError(err)
	}

	t.logger.Info("transcription completed",
		zap.Int("text_len", len(resp.Text)),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Text, nil
}

// Ensure WhisperTranscriber implements Transcriber at compile time.
var _ Transcriber = (*WhisperTranscriber)(nil)
