package agent

import (
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/platform/ai/chatmodel"
	"dispatch_backend/platform/config"
)

// FromConfig builds the gateway over the configured chat model, or the
// Disabled gateway when no API key is set.
func FromConfig(cfg config.AIConfig) (ports.AIGateway, error) {
	if cfg.GetAIAPIKey() == "" {
		return Disabled{}, nil
	}
	llm := chatmodel.New(chatmodel.Config{
		APIKey:  cfg.GetAIAPIKey(),
		BaseURL: cfg.GetAIBaseURL(),
		Model:   cfg.GetAIModel(),
	})
	return NewGateway(llm, Config{
		Timeout:           cfg.GetAITimeout(),
		RequestsPerMinute: cfg.GetAIRequestsPerMinute(),
	})
}
