package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Model is one entry of the models table; active_model selects which one the
// oracles use.
type Model struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty *bool  `yaml:"pretty"`
	File   string `yaml:"file"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	ActiveModel string           `yaml:"active_model"`
	Models      map[string]Model `yaml:"models"`

	MaxIterations int           `yaml:"max_iterations"`
	ExtendBy      int           `yaml:"extend_by"`
	Resumable     bool          `yaml:"resumable"`
	Combined      bool          `yaml:"combined"`
	Timeout       time.Duration `yaml:"timeout"`

	ExamplesFile string `yaml:"examples_file"`
	SessionFile  string `yaml:"session_file"`
	ScriptsDir   string `yaml:"scripts_dir"`
	WorkDir      string `yaml:"work_dir"`
	Python       string `yaml:"python"`
	Rscript      string `yaml:"rscript"`

	Log    Log    `yaml:"log"`
	Server Server `yaml:"server"`
}

func Default() Config {
	return Config{
		ActiveModel: "openai",
		Models: map[string]Model{
			"openai": {
				Provider:    ProviderOpenAI,
				Model:       "gpt-4o-mini",
				APIKeyEnv:   "OPENAI_API_KEY",
				Temperature: 0.2,
			},
			"qwen-coder": {
				Provider:    ProviderOllama,
				Model:       "qwen2.5-coder:7b",
				BaseURL:     "http://localhost:11434",
				Temperature: 0.9,
			},
		},
		MaxIterations: 5,
		ExtendBy:      5,
		Resumable:     true,
		Timeout:       180 * time.Second,
		ExamplesFile:  "examples.json",
		SessionFile:   "session_state.json",
		ScriptsDir:    ".",
		WorkDir:       ".",
		Python:        "python3",
		Rscript:       "Rscript",
		Log:           Log{Level: "info"},
		Server:        Server{Addr: ":8080"},
	}
}

// Load reads a YAML config over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.ExtendBy < 0 {
		return fmt.Errorf("extend_by must not be negative, got %d", c.ExtendBy)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if strings.TrimSpace(c.Python) == "" {
		return errors.New("python interpreter command must not be empty")
	}
	if strings.TrimSpace(c.Rscript) == "" {
		return errors.New("rscript interpreter command must not be empty")
	}
	if _, err := c.Active(); err != nil {
		return err
	}
	return nil
}

// Active returns the profile named by active_model.
func (c Config) Active() (Model, error) {
	m, ok := c.Models[c.ActiveModel]
	if !ok {
		return Model{}, fmt.Errorf("active_model %q is not defined in models", c.ActiveModel)
	}
	switch m.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return Model{}, fmt.Errorf("model %q: unknown provider %q", c.ActiveModel, m.Provider)
	}
	if m.Model == "" {
		return Model{}, fmt.Errorf("model %q: no model name", c.ActiveModel)
	}
	return m, nil
}
