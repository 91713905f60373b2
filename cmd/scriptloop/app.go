package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/chains"
	evaluator "go-scriptloop/internal/agents/evaluator/handler"
	generator "go-scriptloop/internal/agents/generator/handler"
	reasoner "go-scriptloop/internal/agents/reasoner/handler"
	"go-scriptloop/internal/config"
	"go-scriptloop/internal/executor"
	"go-scriptloop/internal/llm"
	"go-scriptloop/internal/loop"
	"go-scriptloop/internal/metrics"
	"go-scriptloop/internal/store"
	"go-scriptloop/pkg/logger"
	"go-scriptloop/pkg/models"
)

type app struct {
	cfg        config.Config
	controller *loop.Controller
	reasoner   *reasoner.Handler
	sessions   *store.SessionStore
	examples   *store.ExampleStore
}

// loadConfig reads .env, the config file and the logging flags, then sets up
// the global logger.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	if err := logger.NewGlobal(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, File: cfg.Log.File}); err != nil {
		return config.Config{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func setupApp(cmd *cobra.Command, reg prometheus.Registerer, opts ...loop.Option) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	profile, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	model, err := llm.New(profile)
	if err != nil {
		return nil, err
	}
	callOpts := []chains.ChainCallOption{chains.WithTemperature(profile.Temperature)}

	var gen loop.Generator
	var eval loop.Evaluator
	if cfg.Combined {
		gen = generator.NewCombined(model, profile.Model, callOpts...)
	} else {
		gen = generator.New(model, profile.Model, callOpts...)
		eval = evaluator.New(model, profile.Model, callOpts...)
	}

	exec := executor.New(
		executor.WithTimeout(cfg.Timeout),
		executor.WithWorkDir(cfg.WorkDir),
		executor.WithScriptsDir(cfg.ScriptsDir),
		executor.WithInterpreter(models.Python, cfg.Python),
		executor.WithInterpreter(models.R, cfg.Rscript),
	)
	sessions := store.NewSessionStore(cfg.SessionFile)

	opts = append([]loop.Option{loop.WithSessions(sessions), loop.WithMetrics(metrics.New(reg))}, opts...)
	controller, err := loop.New(loop.Config{
		MaxIterations: cfg.MaxIterations,
		ExtendBy:      cfg.ExtendBy,
		Resumable:     cfg.Resumable,
		Combined:      cfg.Combined,
	}, gen, eval, exec, opts...)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("model", profile.Model).Str("provider", profile.Provider).Bool("combined", cfg.Combined).Msg("ready")
	return &app{
		cfg:        cfg,
		controller: controller,
		reasoner:   reasoner.New(model, profile.Model, callOpts...),
		sessions:   sessions,
		examples:   store.NewExampleStore(cfg.ExamplesFile),
	}, nil
}
