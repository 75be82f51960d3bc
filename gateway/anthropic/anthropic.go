// Package anthropic provides a gateway.Generator backed by the Claude
// messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/blockvoltcr7/mem0-ai-api/gateway"
)

// Config holds Claude gateway settings.
type Config struct {
	// APIKey authenticates against the Anthropic API. Required.
	APIKey string

	// Model is the Claude model to use.
	Model string

	// MaxTokens caps the reply length.
	MaxTokens int

	// Temperature controls sampling. Zero leaves the API default.
	Temperature float64

	// BaseURL overrides the API endpoint. Useful for proxies and tests.
	BaseURL string
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	Model:     "claude-sonnet-4-20250514",
	MaxTokens: 4096,
}

// AnthropicGateway generates replies with Claude.
type AnthropicGateway struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// New creates a Claude gateway.
func New(cfg Config) (*AnthropicGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig.MaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicGateway{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Generate runs one message exchange.
func (g *AnthropicGateway) Generate(ctx context.Context, req *gateway.Request) (*gateway.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: req.System()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage)),
		},
	}
	if g.temperature > 0 {
		params.Temperature = anthropic.Float(g.temperature)
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, errors.New("anthropic messages: empty reply")
	}

	return &gateway.Reply{Text: text, Model: string(resp.Model)}, nil
}
