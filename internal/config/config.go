// Package config provides configuration loading and management for jota.
package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ProviderOpenAI selects the OpenAI Responses API.
	ProviderOpenAI = "openai"
	// ProviderGemini selects the Gemini API through google.golang.org/genai.
	ProviderGemini = "gemini"
)

// Roles that may override the LLM model.
const (
	RolePlanner   = "planner"
	RoleNarrator  = "narrator"
	RoleReplanner = "replanner"
	RoleGenerator = "generator"
)

// Config is the root configuration.
type Config struct {
	LLM      LLMConfig     `json:"llm"      mapstructure:"llm"`
	Models   RoleModels    `json:"models"   mapstructure:"models"`
	Timeouts Timeouts      `json:"timeouts" mapstructure:"timeouts"`
	Budgets  Budgets       `json:"budgets"  mapstructure:"budgets"`
	Storage  StorageConfig `json:"storage"  mapstructure:"storage"`
	Catalog  CatalogConfig `json:"catalog"  mapstructure:"catalog"`
	Server   ServerConfig  `json:"server"   mapstructure:"server"`
	Log      LogConfig     `json:"log"      mapstructure:"log"`
}

// LLMConfig describes how to reach the language model.
type LLMConfig struct {
	Provider  string        `json:"provider"              mapstructure:"provider"`
	Model     string        `json:"model"                 mapstructure:"model"`
	BaseURL   string        `json:"base_url,omitempty"    mapstructure:"base_url"`
	APIKey    string        `json:"api_key,omitempty"     mapstructure:"api_key"`
	APIKeyEnv string        `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Timeout   time.Duration `json:"timeout,omitempty"     mapstructure:"timeout"`
}

// RoleModels optionally overrides the model per LLM role.
type RoleModels struct {
	Planner   string `json:"planner,omitempty"   mapstructure:"planner"`
	Narrator  string `json:"narrator,omitempty"  mapstructure:"narrator"`
	Replanner string `json:"replanner,omitempty" mapstructure:"replanner"`
	Generator string `json:"generator,omitempty" mapstructure:"generator"`
}

// Timeouts bounds each external call made by a run.
type Timeouts struct {
	Planner    time.Duration `json:"planner"    mapstructure:"planner"`
	Narrator   time.Duration `json:"narrator"   mapstructure:"narrator"`
	Replanner  time.Duration `json:"replanner"  mapstructure:"replanner"`
	Capability time.Duration `json:"capability" mapstructure:"capability"`
}

// Budgets defines run limits.
type Budgets struct {
	MaxSteps   int `json:"max_steps"   mapstructure:"max_steps"`
	MaxReplans int `json:"max_replans" mapstructure:"max_replans"`
}

// StorageConfig points at the SQLite database.
type StorageConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// CatalogConfig points at an optional activity catalog file.
type CatalogConfig struct {
	Path string `json:"path,omitempty" mapstructure:"path"`
}

// ServerConfig configures `jota serve`.
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Format string `json:"format" mapstructure:"format"`
}

// LLMFor returns the LLM config with the model override for role applied.
func (c Config) LLMFor(role string) LLMConfig {
	out := c.LLM
	var override string
	switch role {
	case RolePlanner:
		override = c.Models.Planner
	case RoleNarrator:
		override = c.Models.Narrator
	case RoleReplanner:
		override = c.Models.Replanner
	case RoleGenerator:
		override = c.Models.Generator
	}
	if strings.TrimSpace(override) != "" {
		out.Model = strings.TrimSpace(override)
	}
	return out
}

// Validate checks semantic constraints the schema cannot express.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider %q is not supported (allowed: openai, gemini)", c.LLM.Provider)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Budgets.MaxSteps <= 0 {
		return fmt.Errorf("budgets.max_steps must be > 0")
	}
	if c.Budgets.MaxReplans < 0 {
		return fmt.Errorf("budgets.max_replans must be >= 0")
	}
	for name, d := range map[string]time.Duration{
		"timeouts.planner":    c.Timeouts.Planner,
		"timeouts.narrator":   c.Timeouts.Narrator,
		"timeouts.replanner":  c.Timeouts.Replanner,
		"timeouts.capability": c.Timeouts.Capability,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	return nil
}
