package answer

import (
	"context"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// GeneratorConfig holds configuration for the chat-model generator.
type GeneratorConfig struct {
	// APIKey authenticates against the API. Required.
	APIKey string

	// BaseURL overrides the API endpoint, for OpenAI-compatible servers.
	BaseURL string

	// Model is the chat model. Default: gpt-4o-mini.
	Model string

	// MaxTokens caps the completion length. Default: 500.
	MaxTokens int

	// Temperature controls sampling. Zero is a valid setting and means
	// deterministic sampling; the daemon-level default of 0.7 comes from
	// the config layer.
	Temperature float32
}

// ApplyDefaults sets default values for unset fields.
func (c *GeneratorConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 500
	}
}

// OpenAIGenerator produces answers via an OpenAI-compatible chat API.
type OpenAIGenerator struct {
	client *openai.Client
	config GeneratorConfig
}

// NewOpenAIGenerator creates a chat-model generator.
func NewOpenAIGenerator(cfg GeneratorConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required for generation", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

// Generate completes the prompt with a single chat turn. Failures are
// reported as ErrGenerationUnavailable; the synthesizer downgrades them to
// an extractive answer.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := g.config.Temperature
	if temperature == 0 {
		// go-openai omits a zero temperature from the request, which would
		// fall back to the API default. The smallest positive float keeps
		// an explicit 0 effectively deterministic.
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.config.Model,
		MaxTokens:   g.config.MaxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a helpful assistant."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrGenerationUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

var _ Generator = (*OpenAIGenerator)(nil)
