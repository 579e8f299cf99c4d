package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
)

// GeminiBackend calls the Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend builds a backend from provider settings.
func NewGeminiBackend(ctx context.Context, cfg config.ProviderConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("gemini backend misconfigured: api key and model are required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: cfg.Model}, nil
}

// ChatComplete maps system messages to the system instruction and the rest to user turns.
func (b *GeminiBackend) ChatComplete(ctx context.Context, messages []domain.Message, temperature float64) (string, error) {
	temp := float32(temperature)
	genConfig := &genai.GenerateContentConfig{Temperature: &temp}

	var contents []*genai.Content
	for _, msg := range messages {
		part := &genai.Part{Text: msg.Content}
		if msg.Role == domain.RoleSystem {
			if genConfig.SystemInstruction == nil {
				genConfig.SystemInstruction = &genai.Content{}
			}
			genConfig.SystemInstruction.Parts = append(genConfig.SystemInstruction.Parts, part)
			continue
		}
		contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, genConfig)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return "", fmt.Errorf("generate content: %w: %v", ErrRateLimited, err)
		}
		return "", classify(fmt.Errorf("generate content: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("generate content: %w", ErrEmptyReply)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("generate content: %w", ErrBlocked)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("generate content: %w", ErrEmptyReply)
	}
	return text, nil
}
