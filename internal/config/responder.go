package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MegaGrindStone/roomchat/internal/handlers"
	"github.com/MegaGrindStone/roomchat/internal/services"
	"gopkg.in/yaml.v3"
)

// Responder providers.
const (
	ProviderScripted   = "scripted"
	ProviderOllama     = "ollama"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

const openRouterAPIEndpoint = "https://openrouter.ai/api/v1"

type responderConfig interface {
	responder(logger *slog.Logger) (handlers.Responder, error)
}

// BaseResponderConfig contains the common fields for all model-backed responders.
type BaseResponderConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

type scriptedConfig struct {
	Provider string        `yaml:"provider"`
	Text     string        `yaml:"text"`
	Delay    time.Duration `yaml:"delay"`
}

type ollamaConfig struct {
	BaseResponderConfig `yaml:",inline"`
	Host                string `yaml:"host"`
}

type openAIConfig struct {
	BaseResponderConfig `yaml:",inline"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
}

type anthropicConfig struct {
	BaseResponderConfig `yaml:",inline"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	MaxTokens           int    `yaml:"max_tokens"`
}

// Responder builds the responder described by the responder section. The section is decoded again into
// the struct of its provider.
func (s ServerConfig) Responder(logger *slog.Logger) (handlers.Responder, error) {
	cfg, err := decodeResponder(s.RawResponder)
	if err != nil {
		return nil, err
	}
	return cfg.responder(logger)
}

func decodeResponder(raw map[string]any) (responderConfig, error) {
	provider, ok := raw["provider"].(string)
	if !ok || provider == "" {
		return nil, fmt.Errorf("responder provider is required")
	}

	rawYAML, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal responder config: %w", err)
	}

	var cfg responderConfig
	switch provider {
	case ProviderScripted:
		cfg = &scriptedConfig{}
	case ProviderOllama:
		cfg = &ollamaConfig{}
	case ProviderOpenAI:
		cfg = &openAIConfig{}
	case ProviderOpenRouter:
		cfg = &openAIConfig{BaseURL: openRouterAPIEndpoint}
	case ProviderAnthropic:
		cfg = &anthropicConfig{}
	default:
		return nil, fmt.Errorf("unknown responder provider: %s", provider)
	}

	if err := yaml.Unmarshal(rawYAML, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s responder config: %w", provider, err)
	}
	return cfg, nil
}

func (c scriptedConfig) responder(*slog.Logger) (handlers.Responder, error) {
	if c.Delay < 0 {
		return nil, fmt.Errorf("delay must not be negative")
	}
	return services.NewScripted(c.Text, c.Delay), nil
}

func (o ollamaConfig) responder(logger *slog.Logger) (handlers.Responder, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	r, err := services.NewOllama(host, o.Model, o.SystemPrompt, logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (o openAIConfig) responder(logger *slog.Logger) (handlers.Responder, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" && o.Provider == ProviderOpenRouter {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && o.BaseURL == "" {
		return nil, fmt.Errorf("api_key is required")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, o.SystemPrompt, logger), nil
}

func (a anthropicConfig) responder(logger *slog.Logger) (handlers.Responder, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("max_tokens is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(apiKey, a.BaseURL, a.Model, a.SystemPrompt, a.MaxTokens, logger), nil
}
