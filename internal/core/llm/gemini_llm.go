package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/smartbot/internal/core"
)

type GeminiLLM struct {
	client  *genai.Client
	timeout time.Duration
}

func NewGeminiLLM(ctx context.Context, apiKey string, timeout time.Duration) (*GeminiLLM, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiLLM{client: cl, timeout: timeout}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Complete maps system messages to the system instruction and sends the rest as content parts.
func (g *GeminiLLM) Complete(ctx context.Context, model string, messages []core.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	m := g.client.GenerativeModel(model)
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Role == core.RoleSystem {
			m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(msg.Content)}}
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify(ctx, "gemini", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini returned no candidates", core.ErrUpstream)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ core.CompletionClient = (*GeminiLLM)(nil)
