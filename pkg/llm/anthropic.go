package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const anthropicMaxTokens = 8192

// AnthropicClient talks to the Anthropic Messages API for multimodal
// analysis and generation.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates a multimodal client for the given model.
func NewAnthropicClient(apiKey, model string, logger *zap.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger.Named("llm.anthropic"),
	}, nil
}

func (c *AnthropicClient) buildRequest(prompt string, images []ImageInput) anthropic.MessagesRequest {
	content := make([]anthropic.MessageContent, 0, len(images)+1)
	for _, img := range images {
		content = append(content, anthropic.MessageContent{
			Type: "image",
			Source: &anthropic.MessageContentSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      img.Data,
			},
		})
	}
	content = append(content, anthropic.MessageContent{Type: "text", Text: &prompt})

	return anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: content},
		},
	}
}

func (c *AnthropicClient) GenerateVision(ctx context.Context, prompt string, images []ImageInput) (string, error) {
	c.logger.Debug("multimodal request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("image_count", len(images)))

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, c.buildRequest(prompt, images))
	if err != nil {
		c.logger.Error("multimodal request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", ClassifyError(err)
	}

	c.logger.Info("multimodal request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return extractText(resp), nil
}

func (c *AnthropicClient) StreamVision(ctx context.Context, prompt string, images []ImageInput, onDelta DeltaFunc) (string, error) {
	c.logger.Debug("multimodal stream request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("image_count", len(images)))

	start := time.Now()
	var full strings.Builder
	var deltaErr error

	resp, err := c.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
		MessagesRequest: c.buildRequest(prompt, images),
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if deltaErr != nil || data.Delta.Text == nil {
				return
			}
			full.WriteString(*data.Delta.Text)
			if err := onDelta(*data.Delta.Text); err != nil {
				deltaErr = err
			}
		},
	})
	if err != nil {
		c.logger.Error("multimodal stream failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return full.String(), ClassifyError(err)
	}
	if deltaErr != nil {
		return full.String(), deltaErr
	}

	c.logger.Info("multimodal stream completed",
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return full.String(), nil
}

func extractText(resp anthropic.MessagesResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	return b.String()
}

// Ensure AnthropicClient implements VisionClient at compile time.
var _ VisionClient = (*AnthropicClient)(nil)
