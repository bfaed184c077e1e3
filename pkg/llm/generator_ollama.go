package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
)

type ollamaGenerator struct {
	llm llms.Model
}

func newOllamaGenerator(config ChatConfig) (*ollamaGenerator, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, err
	}
	return &ollamaGenerator{llm: llm}, nil
}

func (g *ollamaGenerator) Stream(ctx context.Context, req types.GenerateRequest, fn func(string) error) error {
	system, turns := splitHistory(req)

	content := make([]llms.MessageContent, 0, len(turns)+1)
	if system != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, msg := range turns {
		role := llms.ChatMessageTypeHuman
		if msg.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	_, err := g.llm.GenerateContent(ctx, content,
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.MaxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return fn(string(chunk))
		}),
	)
	return err
}
