package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultDir is the per-project directory holding config and data.
const DefaultDir = ".jota"

// DefaultPath is the default config file location relative to the working directory.
const DefaultPath = DefaultDir + "/config.yaml"

// DefaultYAML is the config written by `jota init`.
//
//go:embed default.yaml
var DefaultYAML string

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.model", "gpt-4.1-mini")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("timeouts.planner", "60s")
	v.SetDefault("timeouts.narrator", "15s")
	v.SetDefault("timeouts.replanner", "30s")
	v.SetDefault("timeouts.capability", "90s")
	v.SetDefault("budgets.max_steps", 20)
	v.SetDefault("budgets.max_replans", 5)
	v.SetDefault("storage.path", DefaultDir+"/jota.db")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.format", "console")
}

// Load reads the config file at path into v, applies defaults and
// JOTA_* environment overrides, and validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("JOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	settings := v.AllSettings()
	if path != "" {
		raw, err := readRaw(path)
		if err != nil {
			return Config{}, err
		}
		restoreEmptyMaps(settings, raw)
	}
	if err := ValidateSettings(settings); err != nil {
		return Config{}, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = cfg.Timeouts.Capability
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return raw, nil
}

// restoreEmptyMaps copies empty sections from the file into the merged
// settings. Viper drops them, which would hide unknown keys like
// `agents: {plan: {}}` from schema validation.
func restoreEmptyMaps(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			continue
		}
		k = strings.ToLower(k)
		if len(sub) == 0 {
			if _, exists := dst[k]; !exists {
				dst[k] = map[string]any{}
			}
			continue
		}
		d, ok := dst[k].(map[string]any)
		if !ok {
			if _, exists := dst[k]; exists {
				continue
			}
			d = map[string]any{}
		}
		restoreEmptyMaps(d, sub)
		if len(d) > 0 {
			dst[k] = d
		}
	}
}
