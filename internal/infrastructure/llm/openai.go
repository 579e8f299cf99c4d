package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
)

// OpenAIBackend talks to any OpenAI-compatible chat API (OpenAI, DeepSeek, OpenRouter).
type OpenAIBackend struct {
	llm llms.Model
}

// NewOpenAIBackend builds a backend from provider settings.
func NewOpenAIBackend(cfg config.ProviderConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("openai backend misconfigured: api key and model are required")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	return &OpenAIBackend{llm: model}, nil
}

// ChatComplete sends the conversation and returns the first choice.
func (b *OpenAIBackend) ChatComplete(ctx context.Context, messages []domain.Message, temperature float64) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := llms.ChatMessageTypeHuman
		if msg.Role == domain.RoleSystem {
			role = llms.ChatMessageTypeSystem
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	resp, err := b.llm.GenerateContent(ctx, content, llms.WithTemperature(temperature))
	if err != nil {
		return "", classify(fmt.Errorf("generate content: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate content: %w", ErrEmptyReply)
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", fmt.Errorf("generate content: %w", ErrEmptyReply)
	}
	return text, nil
}
