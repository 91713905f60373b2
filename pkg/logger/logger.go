package logger

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	AgentNameField = "agent"
	TaskField      = "task"
	ActorIDField   = "actor"
	RunIDField     = "run"
	IterationField = "iteration"
	LanguageField  = "language"
	ScriptField    = "script"
)

type Options struct {
	Level string
	// Pretty forces the console writer; nil means detect a terminal on stderr.
	Pretty *bool
	// File mirrors the log into a rotating file when set.
	File string
}

func NewGlobal(opts Options) error {
	level := opts.Level
	if level == "" {
		level = "info"
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(l)

	pretty := isatty.IsTerminal(os.Stderr.Fd())
	if opts.Pretty != nil {
		pretty = *opts.Pretty
	}

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if opts.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}
