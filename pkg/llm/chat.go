package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string // gemini, ollama, openai or anthropic
	Model       string
	Temperature *float64 // nil means DefaultTemperature; 0 is a valid setting
	MaxTokens   int
	APIKey      string
	BaseURL     string
}

// ChatEngine uses an LLM to generate chat responses.
type ChatEngine struct {
	config    ChatConfig
	generator types.Generator
}

const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 2000
)

// Float returns a pointer to v, for optional settings such as ChatConfig.Temperature.
func Float(v float64) *float64 {
	return &v
}

// CallOption adjusts a single generation request.
type CallOption func(*types.GenerateRequest)

// WithTemperature overrides the engine temperature for one call.
func WithTemperature(t float64) CallOption {
	return func(req *types.GenerateRequest) {
		req.Temperature = t
	}
}

// StreamChunk carries either a piece of generated text or the error that
// ended the stream.
type StreamChunk struct {
	Text string
	Err  error
}

func defaultChatModel(provider string) string {
	switch provider {
	case "ollama":
		return "mistral"
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	default:
		return "gemini-1.5-flash"
	}
}

func (c *ChatConfig) applyDefaults() error {
	c.Provider = strings.ToLower(c.Provider)
	if c.Provider == "" {
		c.Provider = "gemini"
	}
	if c.Model == "" {
		c.Model = defaultChatModel(c.Provider)
	}
	if c.Temperature == nil {
		c.Temperature = Float(DefaultTemperature)
	} else if t := *c.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	} else if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return nil
}

// NewWithConfig creates a ChatEngine backed by the configured provider.
func NewWithConfig(ctx context.Context, config ChatConfig) (*ChatEngine, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	var (
		gen types.Generator
		err error
	)
	switch config.Provider {
	case "gemini", "google":
		gen, err = newGeminiGenerator(ctx, config)
	case "ollama":
		gen, err = newOllamaGenerator(config)
	case "openai":
		gen, err = newOpenAIGenerator(config)
	case "anthropic":
		gen, err = newAnthropicGenerator(config)
	default:
		return nil, fmt.Errorf("unknown chat provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithGenerator(config, gen), nil
}

// NewWithGenerator wires an existing generator, bypassing provider setup.
// An out-of-range temperature falls back to DefaultTemperature.
func NewWithGenerator(config ChatConfig, gen types.Generator) *ChatEngine {
	if err := config.applyDefaults(); err != nil {
		config.Temperature = nil
		_ = config.applyDefaults()
	}
	return &ChatEngine{config: config, generator: gen}
}

func (ce *ChatEngine) Config() ChatConfig {
	return ce.config
}

func (ce *ChatEngine) request(system []string, messages []models.ChatMessage, opts []CallOption) types.GenerateRequest {
	req := types.GenerateRequest{
		System:      system,
		Messages:    messages,
		Temperature: *ce.config.Temperature,
		MaxTokens:   ce.config.MaxTokens,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// ChatStream starts generation and returns the stream of chunks. The channel
// is closed when generation ends; a failure arrives as a final chunk with Err set.
func (ce *ChatEngine) ChatStream(ctx context.Context, system []string, messages []models.ChatMessage, opts ...CallOption) (<-chan StreamChunk, error) {
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	req := ce.request(system, messages, opts)
	resultChan := make(chan StreamChunk)

	go func() {
		defer close(resultChan)

		err := ce.generator.Stream(ctx, req, func(chunk string) error {
			if chunk == "" {
				return nil
			}
			select {
			case resultChan <- StreamChunk{Text: chunk}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case resultChan <- StreamChunk{Err: fmt.Errorf("chat error: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return resultChan, nil
}

// Chat generates a complete response.
func (ce *ChatEngine) Chat(ctx context.Context, system []string, messages []models.ChatMessage, opts ...CallOption) (string, error) {
	stream, err := ce.ChatStream(ctx, system, messages, opts...)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return b.String(), chunk.Err
		}
		b.WriteString(chunk.Text)
	}
	return b.String(), nil
}

// splitHistory separates client-supplied system messages from the turns.
func splitHistory(req types.GenerateRequest) (system string, turns []models.ChatMessage) {
	parts := append([]string(nil), req.System...)
	for _, msg := range req.Messages {
		if msg.Role == models.RoleSystem {
			parts = append(parts, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	return strings.Join(parts, "\n\n"), turns
}
