package agent

import (
	"fmt"

	"priceradar/internal/agent/providers"
	"priceradar/internal/config"
)

// New creates the navigation agent provider selected by the resolved AI
// mode. The orchestrator calls this once at init.
func New(cfg *config.Config, mode config.AIMode) (Provider, error) {
	switch mode.Provider {
	case "anthropic":
		return providers.NewAnthropicProvider(cfg, mode.APIKey), nil
	case "deepseek":
		return providers.NewDeepSeekProvider(cfg, mode.APIKey), nil
	case "openai":
		return providers.NewOpenAIProvider(cfg, mode.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported agent provider: %s", mode.Provider)
	}
}

// SupportedProviders returns the list of supported agent providers.
func SupportedProviders() []string {
	return []string{"anthropic", "deepseek", "openai"}
}
