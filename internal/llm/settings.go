package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/metalagman/jota/internal/config"
)

const defaultTimeout = 60 * time.Second

// Settings configure one provider client.
type Settings struct {
	Model     string
	BaseURL   string
	APIKey    string
	APIKeyEnv string
	Timeout   time.Duration
}

// SettingsFrom copies the relevant fields of an LLM config.
func SettingsFrom(cfg config.LLMConfig) Settings {
	return Settings{
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		APIKeyEnv: cfg.APIKeyEnv,
		Timeout:   cfg.Timeout,
	}
}

// normalize trims s, resolves the API key and applies the default timeout.
// An explicit key wins over the environment; keyEnv is used when the
// settings name no variable.
func (s Settings) normalize(provider, keyEnv string) (Settings, error) {
	out := Settings{
		Model:   strings.TrimSpace(s.Model),
		BaseURL: strings.TrimSpace(s.BaseURL),
		APIKey:  strings.TrimSpace(s.APIKey),
		Timeout: s.Timeout,
	}
	if out.Model == "" {
		return Settings{}, fmt.Errorf("%s model is required", provider)
	}
	if out.APIKey == "" {
		env := strings.TrimSpace(s.APIKeyEnv)
		if env == "" {
			env = keyEnv
		}
		out.APIKeyEnv = env
		out.APIKey = strings.TrimSpace(os.Getenv(env))
	}
	if out.APIKey == "" {
		return Settings{}, fmt.Errorf("%s api key is required (set api_key or api_key_env)", provider)
	}
	if out.Timeout <= 0 {
		out.Timeout = defaultTimeout
	}
	return out, nil
}
