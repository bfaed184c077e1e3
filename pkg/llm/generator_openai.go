package llm

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
)

type openAIGenerator struct {
	config ChatConfig
	client *openai.Client
}

func newOpenAIGenerator(config ChatConfig) (*openAIGenerator, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}
	return &openAIGenerator{
		config: config,
		client: newOpenAIClient(config.APIKey, config.BaseURL),
	}, nil
}

func (g *openAIGenerator) Stream(ctx context.Context, req types.GenerateRequest, fn func(string) error) error {
	system, turns := splitHistory(req)

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range turns {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       g.config.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		rsp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(rsp.Choices) == 0 {
			continue
		}
		if err := fn(rsp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}
