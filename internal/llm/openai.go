package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/aijose/news-summary-agent-sub001/internal/config"
)

// OpenAIGenerator implements Generator against an OpenAI-compatible chat
// API via langchaingo.
type OpenAIGenerator struct {
	client      llms.Model
	temperature float64
	maxTokens   int
}

// NewOpenAIGenerator creates a generator from the LLM config.
func NewOpenAIGenerator(cfg *config.LLMConfig) (*OpenAIGenerator, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return &OpenAIGenerator{
		client:      client,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate sends the prompt and returns the completion text.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}
	response, err := g.client.GenerateContent(ctx, content,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("generate content: empty response")
	}
	return response.Choices[0].Content, nil
}
