package llm

import (
	"context"
	"errors"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
)

type anthropicGenerator struct {
	config ChatConfig
	client *anthropic.Client
}

func newAnthropicGenerator(config ChatConfig) (*anthropicGenerator, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}

	opts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(config.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &anthropicGenerator{config: config, client: &client}, nil
}

func (g *anthropicGenerator) Stream(ctx context.Context, req types.GenerateRequest, fn func(string) error) error {
	system, turns := splitHistory(req)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.config.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, msg := range turns {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == models.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	stream := g.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok {
			if err := fn(text.Text); err != nil {
				return err
			}
		}
	}
	return stream.Err()
}
