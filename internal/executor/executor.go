package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go-scriptloop/pkg/logger"
	"go-scriptloop/pkg/models"
)

const (
	defaultTimeout   = 180 * time.Second
	defaultMaxOutput = 1 << 20
	truncatedMarker  = "\n[output truncated]"
)

// Mode selects what happens to the script file after execution.
type Mode struct {
	persist bool
	name    string
}

// ModeDiscard runs the script from a temporary file that is always removed.
var ModeDiscard = Mode{}

// ModePersist writes the script to a stable path derived from name and runs it there.
func ModePersist(name string) Mode {
	return Mode{persist: true, name: name}
}

type Executor struct {
	timeout      time.Duration
	workDir      string
	scriptsDir   string
	tempDir      string
	maxOutput    int
	interpreters map[models.Language][]string
}

type Option func(*Executor)

// WithTimeout bounds every execution; zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithWorkDir sets the directory scripts run in, so relative paths resolve there.
func WithWorkDir(dir string) Option {
	return func(e *Executor) { e.workDir = dir }
}

func WithScriptsDir(dir string) Option {
	return func(e *Executor) { e.scriptsDir = dir }
}

func WithTempDir(dir string) Option {
	return func(e *Executor) { e.tempDir = dir }
}

func WithMaxOutput(n int) Option {
	return func(e *Executor) { e.maxOutput = n }
}

// WithInterpreter overrides the command used for lang. The script path is
// appended as the last argument.
func WithInterpreter(lang models.Language, command ...string) Option {
	return func(e *Executor) { e.interpreters[lang] = command }
}

func New(opts ...Option) *Executor {
	e := &Executor{
		timeout:    defaultTimeout,
		workDir:    ".",
		scriptsDir: ".",
		maxOutput:  defaultMaxOutput,
		interpreters: map[models.Language][]string{
			models.Python: {"python3"},
			models.R:      {"Rscript"},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs code with the interpreter for lang. It never fails: every
// problem is reported through the returned result.
func (e *Executor) Execute(ctx context.Context, code string, lang models.Language, mode Mode) models.ExecutionResult {
	command, ok := e.interpreters[lang]
	if !ok || len(command) == 0 {
		return failure(fmt.Sprintf("Unsupported language: %s", lang))
	}
	ext, err := Extension(lang)
	if err != nil {
		return failure(err.Error())
	}

	var path string
	if mode.persist {
		path, err = e.Persist(code, lang, mode.name)
	} else {
		path, err = e.writeTemp(code, ext)
		if path != "" {
			defer func() {
				if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					log.Warn().Err(rmErr).Str(logger.ScriptField, path).Msg("unable to remove temporary script")
				}
			}()
		}
	}
	if err != nil {
		return failure(fmt.Sprintf("Execution error: %v", err))
	}

	return e.run(ctx, command, path)
}

// Persist writes code to <scriptsDir>/<slug(name)><ext> without running it.
func (e *Executor) Persist(code string, lang models.Language, name string) (string, error) {
	ext, err := Extension(lang)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.scriptsDir, 0o755); err != nil {
		return "", fmt.Errorf("scripts dir: %w", err)
	}
	path := filepath.Join(e.scriptsDir, Slug(name)+ext)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	log.Info().Str(logger.ScriptField, path).Msg("script saved")
	return path, nil
}

func (e *Executor) writeTemp(code, ext string) (string, error) {
	f, err := os.CreateTemp(e.tempDir, "scriptloop-*"+ext)
	if err != nil {
		return "", fmt.Errorf("temp script: %w", err)
	}
	path := f.Name()
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		return path, fmt.Errorf("write script: %w", err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("close script: %w", err)
	}
	return path, nil
}

func (e *Executor) run(ctx context.Context, command []string, path string) models.ExecutionResult {
	runCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	abs, err := filepath.Abs(path)
	if err != nil {
		return failure(fmt.Sprintf("Execution error: %v", err))
	}

	args := append(append([]string{}, command[1:]...), abs)
	cmd := exec.CommandContext(runCtx, command[0], args...)
	cmd.Dir = e.workDir
	killGroup(cmd)

	stdout := &limitedBuffer{limit: e.maxOutput}
	stderr := &limitedBuffer{limit: e.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err = cmd.Run()
	log.Debug().Str(logger.ScriptField, abs).Dur("took", time.Since(start)).Msg("script finished")

	res := models.ExecutionResult{Stdout: stdout.String(), Stderr: stderr.String()}
	switch {
	case err == nil:
		res.Success = true
	case ctx.Err() != nil:
		res.Stderr = appendLine(res.Stderr, fmt.Sprintf("Execution cancelled: %v", ctx.Err()))
		res.ReturnCode = -1
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Stderr = appendLine(res.Stderr, fmt.Sprintf("Execution timed out after %s", e.timeout))
		res.ReturnCode = -1
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ReturnCode = exitErr.ExitCode()
		} else {
			res.Stderr = appendLine(res.Stderr, fmt.Sprintf("Execution error: %v", err))
			res.ReturnCode = -1
		}
	}
	return res
}

// Extension maps a language tag to its script file extension.
func Extension(lang models.Language) (string, error) {
	switch lang {
	case models.Python:
		return ".py", nil
	case models.R:
		return ".R", nil
	default:
		return "", fmt.Errorf("Unsupported language: %s", lang)
	}
}

func failure(msg string) models.ExecutionResult {
	return models.ExecutionResult{Success: false, Stderr: msg, ReturnCode: -1}
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return s + "\n" + line
}

type limitedBuffer struct {
	bytes.Buffer
	limit     int
	truncated bool
}

func (lb *limitedBuffer) Write(p []byte) (int, error) {
	if lb.limit > 0 && lb.Len()+len(p) > lb.limit {
		if remaining := lb.limit - lb.Len(); remaining > 0 {
			lb.Buffer.Write(p[:remaining])
		}
		lb.truncated = true
		return len(p), nil
	}
	return lb.Buffer.Write(p)
}

func (lb *limitedBuffer) String() string {
	if lb.truncated {
		return lb.Buffer.String() + truncatedMarker
	}
	return lb.Buffer.String()
}
