package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI models
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Match asks the model which candidate substantiates the claim
func (p *OpenAIProvider) Match(ctx context.Context, req MatchRequest) (*MatchResponse, error) {
	if len(req.Candidates) == 0 {
		return nil, ErrNoMatch
	}

	raw, err := p.complete(ctx, BuildMatchPrompt(req), 50)
	if err != nil {
		return nil, err
	}

	id, err := ParseMatch(raw)
	if err != nil {
		return nil, err
	}
	return &MatchResponse{DocumentID: id, Raw: raw}, nil
}

// Rate asks the model for a 1-10 support rating
func (p *OpenAIProvider) Rate(ctx context.Context, req RateRequest) (*RateResponse, error) {
	raw, err := p.complete(ctx, BuildRatePrompt(req), 0)
	if err != nil {
		return nil, err
	}
	return ParseRating(raw)
}

// complete makes a single-shot chat completion call
func (p *OpenAIProvider) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	model := p.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 300
	}

	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   maxTokens,
		Temperature: 0, // Deterministic answers for scoring
	}

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, chatReq)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices from OpenAI", ErrInvalidResponse)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
