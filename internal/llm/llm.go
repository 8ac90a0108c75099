// Package llm holds the chat completion clients the analyst delegates to.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlsight/sqlsight/internal/config"
)

type Prompt struct {
	System string
	User   string
	// Temperature overrides the client default when set.
	Temperature *float64
	// JSON asks providers that support it for a JSON object reply.
	JSON bool
}

type Completion struct {
	Text     string
	Provider string
	Model    string
}

type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
}

// New builds the completer selected by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderOpenAI, "":
		return NewChatClient(ChatConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderAzure:
		return NewChatClient(ChatConfig{
			Azure:           true,
			BaseURL:         cfg.AzureEndpoint,
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
			AzureDeployment: cfg.AzureDeployment,
			AzureAPIVersion: cfg.AzureAPIVersion,
			Temperature:     cfg.Temperature,
			Timeout:         cfg.Timeout,
		})
	case config.ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func excerpt(body []byte) string {
	const max = 512
	text := strings.TrimSpace(string(body))
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
