package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/markdave123-py/smartbot/internal/config"
	"github.com/markdave123-py/smartbot/internal/core"
)

// NewCompletionClient builds the client for the configured provider. A missing
// API key is not a startup error: every call then fails with ErrServiceUnavailable.
func NewCompletionClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (core.CompletionClient, error) {
	if cfg.LLMAPIKey == "" {
		logger.Warn("completion api key not set; queries will fail until configured",
			zap.String("provider", cfg.LLMProvider))
		return unconfiguredClient{provider: cfg.LLMProvider}, nil
	}

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiLLM(ctx, cfg.LLMAPIKey, cfg.CompletionTimeout)
	case config.ProviderOpenAI:
		return NewOpenAILLM(cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.CompletionTimeout), nil
	default:
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			baseURL = GroqBaseURL
		}
		return NewOpenAILLM(config.ProviderGroq, cfg.LLMAPIKey, baseURL, cfg.CompletionTimeout), nil
	}
}
