// Package repl is the interactive shell around the retry loop.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go-scriptloop/internal/loop"
	"go-scriptloop/pkg/models"
)

type Runner interface {
	Run(ctx context.Context, req loop.RunRequest) (models.Outcome, error)
	Resume(ctx context.Context, session models.Session) (models.Outcome, error)
	MaxIterations() int
}

type Reasoner interface {
	Reason(ctx context.Context, req models.ReasonRequest) (string, error)
}

type Sessions interface {
	Load() (models.Session, bool)
	Delete() error
}

type Examples interface {
	Load() []models.Example
	Append(ex models.Example) error
}

type Deps struct {
	Loop     Runner
	Reasoner Reasoner
	Sessions Sessions
	Examples Examples
}

type Shell struct {
	deps  Deps
	in    *bufio.Scanner
	out   io.Writer
	lines chan string
	start sync.Once
}

func New(deps Deps, in io.Reader, out io.Writer) *Shell {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Shell{deps: deps, in: scanner, out: out, lines: make(chan string)}
}

// read feeds input lines to ask. A read blocked on the terminal cannot be
// interrupted, so on cancellation the goroutine is left behind and exits with
// the process.
func (s *Shell) read() {
	defer close(s.lines)
	for s.in.Scan() {
		s.lines <- s.in.Text()
	}
	if err := s.in.Err(); err != nil {
		log.Warn().Err(err).Msg("stopped reading input")
	}
}

// Run reads commands until quit, end of input or cancellation. Errors from a
// single command are reported and the shell keeps going.
func (s *Shell) Run(ctx context.Context) error {
	s.printf("Script generator ready.\n")
	s.printf("Type a task, 'load:<file>' to build on an existing script, 'resume' to continue the saved session, or 'quit'.\n")
	s.start.Do(func() { go s.read() })
	for {
		line, ok := s.ask(ctx, "\nTask> ")
		if !ok {
			if ctx.Err() != nil {
				s.printf("\nCancelled.\n")
			}
			return nil
		}
		cmd := strings.ToLower(line)
		switch {
		case cmd == "":
			continue
		case cmd == "quit" || cmd == "exit" || cmd == "q":
			s.printf("Bye.\n")
			return nil
		}
		if err := s.dispatch(ctx, line, cmd); err != nil {
			if ctx.Err() != nil {
				s.printf("Cancelled.\n")
				return nil
			}
			log.Error().Err(err).Msg("command failed")
			s.printf("Error: %v\n", err)
		}
	}
}

// dispatch runs one command. A panic inside it is reported like any other
// command error.
func (s *Shell) dispatch(ctx context.Context, line, cmd string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("stack", string(debug.Stack())).Msgf("command panicked: %v", r)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	switch {
	case cmd == "resume":
		return s.resume(ctx)
	case strings.HasPrefix(cmd, "load:"):
		return s.load(ctx, strings.TrimSpace(line[len("load:"):]))
	default:
		return s.task(ctx, line, "", models.Python)
	}
}

func (s *Shell) task(ctx context.Context, description, seed string, defaultLang models.Language) error {
	lang := s.askLanguage(ctx, defaultLang)
	maxIterations := s.askInt(ctx, fmt.Sprintf("Max attempts [%d]: ", s.deps.Loop.MaxIterations()), s.deps.Loop.MaxIterations())
	if err := ctx.Err(); err != nil {
		return err
	}

	var examples []models.Example
	if s.deps.Examples != nil {
		examples = s.deps.Examples.Load()
	}
	s.printf("Working on: %s (%s, up to %d attempts)\n", description, lang, maxIterations)
	outcome, err := s.deps.Loop.Run(ctx, loop.RunRequest{
		Task:          models.Task{Description: description, Language: lang},
		MaxIterations: maxIterations,
		Examples:      examples,
		SeedCode:      seed,
	})
	if err != nil {
		return err
	}
	if outcome.Success() && s.deps.Sessions != nil {
		if err := s.deps.Sessions.Delete(); err != nil {
			log.Warn().Err(err).Msg("unable to remove session state")
		}
	}
	return s.finish(ctx, outcome)
}

func (s *Shell) resume(ctx context.Context) error {
	if s.deps.Sessions == nil {
		s.printf("No saved session found.\n")
		return nil
	}
	session, ok := s.deps.Sessions.Load()
	if !ok {
		s.printf("No saved session found.\n")
		return nil
	}
	s.printf("Resuming: %s (%s, attempt %d of %d)\n", session.Task, session.Language, session.CurrentIteration, session.MaxIterations)
	outcome, err := s.deps.Loop.Resume(ctx, session)
	if err != nil {
		return err
	}
	return s.finish(ctx, outcome)
}

func (s *Shell) load(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("usage: load:<file>")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	code := strings.TrimSpace(string(b))
	if code == "" {
		return fmt.Errorf("load script: %s is empty", path)
	}
	s.printf("Loaded %d lines from %s\n", strings.Count(code, "\n")+1, path)

	description, ok := s.ask(ctx, "What should be changed or added? ")
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok || description == "" {
		s.printf("No task given.\n")
		return nil
	}
	lang := models.Python
	if strings.EqualFold(filepath.Ext(path), ".r") {
		lang = models.R
	}
	return s.task(ctx, description, code, lang)
}

func (s *Shell) finish(ctx context.Context, outcome models.Outcome) error {
	if !outcome.Success() {
		s.printf("\nFailed after %d attempts.\n", outcome.Iterations)
		if outcome.Summary != "" {
			s.printf("Last feedback: %s\n", outcome.Summary)
		}
		if outcome.ScriptPath != "" {
			s.printf("Last script saved to %s\n", outcome.ScriptPath)
		}
		if s.deps.Sessions != nil {
			if _, ok := s.deps.Sessions.Load(); ok {
				s.printf("Progress saved. Type 'resume' to continue.\n")
			}
		}
		return nil
	}

	s.printf("\nSuccess after %d attempt(s).\n", outcome.Iterations)
	if outcome.ScriptPath != "" {
		s.printf("Script saved to %s\n", outcome.ScriptPath)
	}
	if outcome.Result.Stdout != "" {
		s.printf("Output:\n%s\n", outcome.Result.Stdout)
	}
	if s.deps.Examples == nil || !s.confirm(ctx, "Save this as an example? (y/n): ") {
		return nil
	}
	return s.saveExample(ctx, outcome)
}

func (s *Shell) saveExample(ctx context.Context, outcome models.Outcome) error {
	reasoning := outcome.Reasoning
	if outcome.Iterations > 1 && s.deps.Reasoner != nil {
		s.printf("Writing up the reasoning...\n")
		clean, err := s.deps.Reasoner.Reason(ctx, models.ReasonRequest{
			Task:             outcome.Task.Description,
			Language:         outcome.Task.Language,
			Code:             outcome.Code,
			IterationContext: outcome.Context,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("keeping the generator's reasoning")
		} else {
			reasoning = clean
		}
	}

	example := models.Example{
		Task:      outcome.Task.Description,
		Language:  string(outcome.Task.Language),
		Reasoning: reasoning,
		Code:      outcome.Code,
	}
	s.printf("\nTask: %s\nLanguage: %s\nReasoning: %s\nCode:\n%s\n\n", example.Task, example.Language, example.Reasoning, example.Code)
	if !s.confirm(ctx, "Add this example? (y/n): ") {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.printf("Example discarded.\n")
		return nil
	}
	if err := s.deps.Examples.Append(example); err != nil {
		return fmt.Errorf("save example: %w", err)
	}
	s.printf("Example saved.\n")
	return nil
}

func (s *Shell) askLanguage(ctx context.Context, def models.Language) models.Language {
	answer, _ := s.ask(ctx, fmt.Sprintf("Language (python/r) [%s]: ", def))
	if answer == "" {
		return def
	}
	lang := models.ParseLanguage(answer)
	if !lang.Supported() {
		s.printf("Unknown language %q, using %s.\n", answer, def)
		return def
	}
	return lang
}

func (s *Shell) askInt(ctx context.Context, prompt string, def int) int {
	answer, _ := s.ask(ctx, prompt)
	if answer == "" {
		return def
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 {
		s.printf("Not a positive number, using %d.\n", def)
		return def
	}
	return n
}

func (s *Shell) confirm(ctx context.Context, prompt string) bool {
	answer, _ := s.ask(ctx, prompt)
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

// ask returns false at end of input or once ctx is cancelled, even when a
// line arrived at the same time.
func (s *Shell) ask(ctx context.Context, prompt string) (string, bool) {
	s.printf("%s", prompt)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-s.lines:
		if !ok || ctx.Err() != nil {
			return "", false
		}
		return strings.TrimSpace(line), true
	}
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
