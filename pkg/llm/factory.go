package llm

import (
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/config"
)

// NewFromConfig builds the chat client for the configured provider.
// OpenAI wins when both keys are set because it carries native function
// calling for the Investigator agent. Returns nil when no provider is
// configured; callers run their deterministic fallback paths.
func NewFromConfig(cfg *config.LLMConfig, logger *zap.Logger) ChatClient {
	switch {
	case cfg.OpenAIAPIKey != "":
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
	case cfg.AnthropicAPIKey != "":
		return NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger)
	default:
		return nil
	}
}
