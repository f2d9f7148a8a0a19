package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/config"
)

// Backends bundles the model clients the generation pipeline needs.
type Backends struct {
	Vision      VisionClient
	Text        TextClient
	Transcriber Transcriber
}

// NewBackends builds all model clients from configuration.
func NewBackends(cfg config.AIConfig, logger *zap.Logger) (*Backends, error) {
	vision, err := NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	text, err := NewClient(&Config{
		Endpoint: cfg.TextBaseURL,
		Model:    cfg.TextModel,
		APIKey:   cfg.TextAPIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create text client: %w", err)
	}

	transcriber, err := NewWhisperTranscriber(cfg.TextAPIKey, cfg.WhisperModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	return &Backends{
		Vision:      vision,
		Text:        text,
		Transcriber: transcriber,
	}, nil
}
