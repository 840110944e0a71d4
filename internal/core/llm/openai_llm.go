package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/markdave123-py/smartbot/internal/core"
)

const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAILLM talks to any OpenAI-compatible chat completion endpoint (OpenAI, Groq).
type OpenAILLM struct {
	client   *openai.Client
	provider string
	timeout  time.Duration
}

func NewOpenAILLM(provider, apiKey, baseURL string, timeout time.Duration) *OpenAILLM {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAILLM{
		client:   openai.NewClientWithConfig(cfg),
		provider: provider,
		timeout:  timeout,
	}
}

// Complete issues a single chat completion request. It never retries.
func (o *OpenAILLM) Complete(ctx context.Context, model string, messages []core.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: %s returned %d: %s", core.ErrUpstream, o.provider, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", classify(ctx, o.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", core.ErrUpstream, o.provider)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ core.CompletionClient = (*OpenAILLM)(nil)
