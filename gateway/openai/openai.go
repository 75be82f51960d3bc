// Package openai provides a gateway.Generator backed by the OpenAI
// chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/blockvoltcr7/mem0-ai-api/gateway"
)

// Config holds OpenAI gateway settings.
type Config struct {
	// APIKey authenticates against the OpenAI API. Required.
	APIKey string

	// Model is the chat model to use.
	Model string

	// MaxTokens caps the reply length.
	MaxTokens int

	// Temperature controls sampling.
	Temperature float64

	// BaseURL overrides the API endpoint. Useful for proxies and tests.
	BaseURL string
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	Model:       "gpt-4o-mini",
	MaxTokens:   1000,
	Temperature: 0.7,
}

// OpenAIGateway generates replies with OpenAI chat completions.
type OpenAIGateway struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// New creates an OpenAI gateway.
func New(cfg Config) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultConfig.Temperature
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGateway{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Generate runs one chat completion.
func (g *OpenAIGateway) Generate(ctx context.Context, req *gateway.Request) (*gateway.Reply, error) {
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System()),
			openai.UserMessage(req.UserMessage),
		},
		Temperature: openai.Float(g.temperature),
		MaxTokens:   openai.Int(int64(g.maxTokens)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai chat completion: no choices returned")
	}

	model := completion.Model
	if model == "" {
		model = g.model
	}
	return &gateway.Reply{
		Text:  completion.Choices[0].Message.Content,
		Model: model,
	}, nil
}
