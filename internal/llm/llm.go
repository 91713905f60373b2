package llm

import (
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go-scriptloop/internal/config"
)

// New builds the language model described by a config profile.
func New(m config.Model) (llms.Model, error) {
	switch m.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(m.Model)}
		if m.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(m.BaseURL))
		}
		if m.APIKeyEnv != "" {
			token := os.Getenv(m.APIKeyEnv)
			if token == "" {
				return nil, fmt.Errorf("openai: %s is not set", m.APIKeyEnv)
			}
			opts = append(opts, openai.WithToken(token))
		}
		l, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return l, nil
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(m.Model)}
		if m.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(m.BaseURL))
		}
		l, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", m.Provider)
	}
}
