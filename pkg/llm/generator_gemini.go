package llm

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
	"google.golang.org/api/iterator"
	genaiopt "google.golang.org/api/option"
)

type geminiGenerator struct {
	config ChatConfig
	client *genai.Client
}

func newGeminiGenerator(ctx context.Context, config ChatConfig) (*geminiGenerator, error) {
	if config.APIKey == "" {
		return nil, errors.New("google API key is required")
	}

	client, err := genai.NewClient(ctx, genaiopt.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, err
	}
	return &geminiGenerator{config: config, client: client}, nil
}

func (g *geminiGenerator) Stream(ctx context.Context, req types.GenerateRequest, fn func(string) error) error {
	system, turns := splitHistory(req)
	if len(turns) == 0 {
		return errors.New("no user message to answer")
	}

	model := g.client.GenerativeModel(g.config.Model)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	iter := cs.SendMessageStream(ctx, genai.Text(turns[len(turns)-1].Content))
	for {
		rsp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, cand := range rsp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					if err := fn(string(text)); err != nil {
						return err
					}
				}
			}
		}
	}
}
