package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Summarizer condenses retrieved context with a small chat model.
type Summarizer struct {
	client openai.Client
	model  openai.ChatModel
}

// NewSummarizer returns nil when no API key is configured; callers fall
// back to heuristic condensation.
func NewSummarizer(apiKey string) *Summarizer {
	if apiKey == "" {
		return nil
	}
	return &Summarizer{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
	}
}

// Summarize runs a single chat completion with a low temperature.
func (s *Summarizer) Summarize(ctx context.Context, system, prompt string, maxOutputTokens int) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       s.model,
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(int64(maxOutputTokens)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("embed: summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("embed: summarize: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
