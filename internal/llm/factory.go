package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/metalagman/jota/internal/config"
)

// New constructs a Completer for the configured provider.
func New(ctx context.Context, cfg config.LLMConfig, httpClient *http.Client) (Completer, error) {
	s := SettingsFrom(cfg)
	var (
		c   Completer
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		c, err = NewOpenAIClient(s, httpClient)
	case config.ProviderGemini:
		c, err = NewGeminiClient(ctx, s, httpClient)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
