package capability

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIGenerator implements TextGenerator on the OpenAI chat completion
// API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator with the given API key and default
// model. Per-request options may override the model.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Complete sends the conversation and returns the first choice's content.
func (g *OpenAIGenerator) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (Completion, error) {
	model := opts.Model
	if model == "" {
		model = g.model
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = opts.MaxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("completion returned no choices")
	}

	return Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
