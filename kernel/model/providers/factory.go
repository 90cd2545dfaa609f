package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/basnijholt/kernelchat/kernel/model"
)

// Factory builds model providers from alias configs.
type Factory struct {
	configs map[string]Config
}

// NewFactory returns an empty provider factory.
func NewFactory() *Factory {
	return &Factory{configs: map[string]Config{}}
}

// Register adds or overwrites one alias config.
func (f *Factory) Register(cfg Config) error {
	if f == nil {
		return fmt.Errorf("providers: factory is nil")
	}
	alias := strings.ToLower(strings.TrimSpace(cfg.Alias))
	if alias == "" {
		return fmt.Errorf("providers: alias is required")
	}
	if cfg.API != APIOpenAI && cfg.API != APIOpenAICompatible && cfg.API != APIGemini && cfg.API != APIAnthropic {
		return fmt.Errorf("providers: unsupported api type %q", cfg.API)
	}
	authType := strings.TrimSpace(string(cfg.Auth.Type))
	if authType != "" && cfg.Auth.Type != AuthAPIKey {
		return fmt.Errorf("providers: unsupported auth type %q (only api_key is supported now)", cfg.Auth.Type)
	}
	if cfg.Auth.Type == "" {
		cfg.Auth.Type = AuthAPIKey
	}
	cfg.Alias = alias
	f.configs[alias] = cfg
	return nil
}

// NewByAlias creates a model provider by alias.
func (f *Factory) NewByAlias(alias string) (model.LLM, error) {
	if f == nil {
		return nil, fmt.Errorf("providers: factory is nil")
	}
	alias = strings.ToLower(strings.TrimSpace(alias))
	if alias == "" {
		return nil, fmt.Errorf("providers: model alias is required")
	}
	cfg, ok := f.configs[alias]
	if !ok {
		return nil, fmt.Errorf("providers: unknown model alias %q", alias)
	}
	token, err := resolveToken(cfg.Auth)
	if err != nil {
		return nil, err
	}

	switch cfg.API {
	case APIOpenAI, APIOpenAICompatible:
		return newOpenAICompat(cfg, token), nil
	case APIAnthropic:
		return newAnthropic(cfg, token), nil
	case APIGemini:
		return newGemini(cfg, token), nil
	default:
		return nil, fmt.Errorf("providers: unsupported api type %q", cfg.API)
	}
}

// NewByAlias creates a model provider from a new empty factory.
func NewByAlias(alias string) (model.LLM, error) {
	return NewFactory().NewByAlias(alias)
}

// ListModels returns available aliases from current factory.
func (f *Factory) ListModels() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.configs))
	for k := range f.configs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ListModels returns aliases from a new empty factory.
func ListModels() []string {
	return NewFactory().ListModels()
}

// FromEnv builds a provider from ambient credentials, checking for an
// OpenAI key first, then Anthropic, then Google. The model can be
// overridden per provider via OPENAI_MODEL, ANTHROPIC_MODEL and
// GEMINI_MODEL.
func FromEnv() (model.LLM, error) {
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (model.LLM, error) {
	if key := strings.TrimSpace(getenv("OPENAI_API_KEY")); key != "" {
		cfg := Config{
			Alias:    "openai",
			Provider: "openai",
			API:      APIOpenAI,
			Model:    envOr(getenv, "OPENAI_MODEL", "gpt-4o"),
			BaseURL:  "https://api.openai.com/v1",
			Auth:     AuthConfig{Type: AuthAPIKey, Token: key},
		}
		return newOpenAICompat(cfg, key), nil
	}
	if key := strings.TrimSpace(getenv("ANTHROPIC_API_KEY")); key != "" {
		cfg := Config{
			Alias:    "anthropic",
			Provider: "anthropic",
			API:      APIAnthropic,
			Model:    envOr(getenv, "ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			Auth:     AuthConfig{Type: AuthAPIKey, Token: key},
		}
		return newAnthropic(cfg, key), nil
	}
	key := strings.TrimSpace(getenv("GOOGLE_API_KEY"))
	if key == "" {
		key = strings.TrimSpace(getenv("GEMINI_API_KEY"))
	}
	if key != "" {
		cfg := Config{
			Alias:    "gemini",
			Provider: "google",
			API:      APIGemini,
			Model:    envOr(getenv, "GEMINI_MODEL", "gemini-2.5-flash"),
			Auth:     AuthConfig{Type: AuthAPIKey, Token: key},
		}
		return newGemini(cfg, key), nil
	}
	return nil, fmt.Errorf("providers: no api key in environment (set OPENAI_API_KEY, ANTHROPIC_API_KEY or GOOGLE_API_KEY)")
}

func envOr(getenv func(string) string, name, fallback string) string {
	if value := strings.TrimSpace(getenv(name)); value != "" {
		return value
	}
	return fallback
}

func resolveToken(cfg AuthConfig) (string, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" && cfg.TokenEnv != "" {
		token = strings.TrimSpace(os.Getenv(cfg.TokenEnv))
	}
	if token == "" {
		return "", fmt.Errorf("providers: auth token is empty")
	}
	return token, nil
}
