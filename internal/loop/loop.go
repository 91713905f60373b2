// Package loop drives the generate, execute, evaluate cycle until a script
// satisfies its task or the iteration budget runs out.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go-scriptloop/internal/executor"
	"go-scriptloop/internal/metrics"
	"go-scriptloop/internal/store"
	"go-scriptloop/pkg/logger"
	"go-scriptloop/pkg/models"
)

const (
	FirstAttempt    = "This is the first attempt."
	defaultExtendBy = 5
)

var (
	ErrOracle     = errors.New("oracle failed")
	ErrInvalidRun = errors.New("invalid run")
)

type Generator interface {
	Generate(ctx context.Context, req models.GenerateRequest) (models.Generation, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, req models.EvaluateRequest) (models.Evaluation, error)
}

// Runner executes and saves scripts; *executor.Executor is the real one.
type Runner interface {
	Execute(ctx context.Context, code string, lang models.Language, mode executor.Mode) models.ExecutionResult
	Persist(code string, lang models.Language, name string) (string, error)
}

// Stateful oracles have their internal state checkpointed with a session.
type Stateful interface {
	DumpState() (json.RawMessage, error)
	LoadState(raw json.RawMessage) error
}

type SessionStore interface {
	Save(session models.Session) error
	Delete() error
}

type Config struct {
	MaxIterations int
	// ExtendBy is how many more attempts a checkpointed session gets.
	ExtendBy  int
	Resumable bool
	// Combined skips the evaluator and trusts the generator's finished flag
	// once it has seen at least one execution result.
	Combined bool
}

// Progress is reported to an observer as a run moves through its states.
type Progress struct {
	RunID         uuid.UUID
	Iteration     int
	MaxIterations int
	State         models.State
}

type Controller struct {
	cfg      Config
	gen      Generator
	eval     Evaluator
	exec     Runner
	sessions SessionStore
	metrics  *metrics.Metrics
	observe  func(Progress)
}

type Option func(*Controller)

func WithSessions(s SessionStore) Option {
	return func(c *Controller) { c.sessions = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithObserver(fn func(Progress)) Option {
	return func(c *Controller) { c.observe = fn }
}

func New(cfg Config, gen Generator, eval Evaluator, exec Runner, opts ...Option) (*Controller, error) {
	if cfg.MaxIterations < 1 {
		return nil, fmt.Errorf("%w: max iterations must be at least 1", ErrInvalidRun)
	}
	if cfg.ExtendBy <= 0 {
		cfg.ExtendBy = defaultExtendBy
	}
	if gen == nil || exec == nil {
		return nil, errors.New("loop: generator and runner are required")
	}
	if eval == nil && !cfg.Combined {
		return nil, errors.New("loop: an evaluator is required unless running combined")
	}
	c := &Controller{cfg: cfg, gen: gen, eval: eval, exec: exec, observe: func(Progress) {}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) MaxIterations() int {
	return c.cfg.MaxIterations
}

type RunRequest struct {
	Task models.Task
	// MaxIterations overrides the configured budget when positive.
	MaxIterations int
	Examples      []models.Example
	// StartIteration defaults to 1.
	StartIteration int
	// InitialContext replaces the first attempt seed, as when resuming.
	InitialContext string
	// SeedCode is an existing script the generator should build on.
	SeedCode string
	// ScriptName names the persisted script; defaults to the task.
	ScriptName string
	RunID      uuid.UUID

	resumed bool
}

// Run drives the loop. Exhausting the budget is a failed outcome, not an
// error; errors are reserved for oracle failures, cancellation and invalid
// requests, and none of them write a session.
func (c *Controller) Run(ctx context.Context, req RunRequest) (models.Outcome, error) {
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = c.cfg.MaxIterations
	}
	start := req.StartIteration
	if start == 0 {
		start = 1
	}
	if req.Task.Description == "" {
		return models.Outcome{}, fmt.Errorf("%w: empty task", ErrInvalidRun)
	}
	if start < 1 || start > maxIterations {
		return models.Outcome{}, fmt.Errorf("%w: start iteration %d outside budget %d", ErrInvalidRun, start, maxIterations)
	}
	if req.RunID == uuid.Nil {
		req.RunID = uuid.New()
	}
	name := req.ScriptName
	if name == "" {
		name = req.Task.Description
	}

	l := log.With().
		Str(logger.RunIDField, req.RunID.String()).
		Str(logger.LanguageField, string(req.Task.Language)).
		Logger()
	l.Info().Str(logger.TaskField, req.Task.Description).Int("max", maxIterations).Msgf("starting at attempt %d", start)

	iterationContext := c.firstContext(req)
	var last models.Attempt
	seen := false

	for iteration := start; iteration <= maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return models.Outcome{}, err
		}
		il := l.With().Int(logger.IterationField, iteration).Logger()
		il.Info().Msgf("attempt %d...", iteration)
		il.Debug().Str("context", iterationContext).Msg("generating")
		c.progress(req.RunID, iteration, maxIterations, models.Thinking)

		genReq := models.GenerateRequest{Task: req.Task.Description, Language: req.Task.Language, Context: iterationContext}
		if seen {
			genReq.ExecutionResult = last.Result.String()
		}
		gen, err := c.gen.Generate(ctx, genReq)
		if err != nil {
			return models.Outcome{}, c.oracleError(ctx, "generate", err)
		}
		il.Debug().Str("reasoning", gen.Reasoning).Str("code", gen.Code).Msg("generated")

		if c.cfg.Combined && gen.Finished && seen {
			code := gen.Code
			if code == "" {
				code = last.Generation.Code
			}
			il.Info().Msg("generator reports the task finished")
			return c.succeed(il, req, name, iteration, iterationContext, models.Attempt{
				Iteration:  iteration,
				Generation: models.Generation{Reasoning: gen.Reasoning, Code: code, Finished: true},
				Result:     last.Result,
				Evaluation: models.Evaluation{Achieved: true, Rationale: gen.Reasoning},
			}), nil
		}

		c.progress(req.RunID, iteration, maxIterations, models.Executing)
		started := time.Now()
		result := c.exec.Execute(ctx, gen.Code, req.Task.Language, executor.ModeDiscard)
		c.metrics.ObserveExecution(time.Since(started))
		c.metrics.Attempt(string(req.Task.Language))
		il.Debug().Str("result", result.String()).Msg("executed")

		evaluation := models.Evaluation{Rationale: gen.Reasoning}
		if !c.cfg.Combined {
			c.progress(req.RunID, iteration, maxIterations, models.Evaluating)
			evaluation, err = c.eval.Evaluate(ctx, models.EvaluateRequest{
				Task:            req.Task.Description,
				Language:        req.Task.Language,
				Code:            gen.Code,
				ExecutionResult: result.String(),
			})
			if err != nil {
				return models.Outcome{}, c.oracleError(ctx, "evaluate", err)
			}
		}

		attempt := models.Attempt{Iteration: iteration, Generation: gen, Result: result, Evaluation: evaluation}
		if evaluation.Achieved {
			il.Info().Str("summary", evaluation.Rationale).Msg("success!")
			return c.succeed(il, req, name, iteration, iterationContext, attempt), nil
		}

		il.Info().Bool("ran", result.Success).Int("returncode", result.ReturnCode).
			Str("reason", evaluation.Guidance()).Msg("not completed")
		iterationContext = FailureContext(attempt)
		last = attempt
		seen = true
	}

	return c.exhaust(ctx, l, req, name, maxIterations, iterationContext, last), nil
}

// Resume continues a checkpointed session from its stored iteration.
func (c *Controller) Resume(ctx context.Context, session models.Session) (models.Outcome, error) {
	req, err := c.PrepareResume(session)
	if err != nil {
		return models.Outcome{}, err
	}
	return c.Run(ctx, req)
}

// PrepareResume restores the oracle state saved with session and returns the
// request that continues it. The session is removed once that request succeeds.
func (c *Controller) PrepareResume(session models.Session) (RunRequest, error) {
	if err := session.Validate(); err != nil {
		return RunRequest{}, fmt.Errorf("%w: %v", ErrInvalidRun, err)
	}
	c.loadState(c.gen, session.GeneratorState, "generator")
	c.loadState(c.eval, session.EvaluatorState, "evaluator")

	log.Info().Str(logger.TaskField, session.Task).
		Msgf("resuming from iteration %d/%d", session.CurrentIteration, session.MaxIterations)
	return RunRequest{
		Task:           models.Task{Description: session.Task, Language: session.Language},
		MaxIterations:  session.MaxIterations,
		Examples:       session.Examples,
		StartIteration: session.CurrentIteration,
		InitialContext: session.Context,
		resumed:        true,
	}, nil
}

func (c *Controller) firstContext(req RunRequest) string {
	if req.InitialContext != "" {
		return req.InitialContext
	}
	text := FirstAttempt
	if req.SeedCode != "" {
		text += fmt.Sprintf("\n\nStarting with this working code as a base:\n\n```%s\n%s\n```\n\nNow enhance/modify it to: %s",
			req.Task.Language, req.SeedCode, req.Task.Description)
	}
	relevant := store.Relevant(req.Examples, req.Task.Description, req.Task.Language, store.DefaultRelevantLimit)
	return text + store.FormatExamples(relevant)
}

// FailureContext summarises a failed attempt for the next prompt. It replaces
// the previous context rather than extending it.
func FailureContext(a models.Attempt) string {
	return fmt.Sprintf("Previous attempt failed. Code: %s\nResult: %s\nFeedback: %s",
		a.Generation.Code, a.Result.String(), a.Evaluation.Guidance())
}

func (c *Controller) succeed(l zerolog.Logger, req RunRequest, name string, iteration int, iterationContext string, a models.Attempt) models.Outcome {
	path := c.persist(l, a.Generation.Code, req.Task.Language, name)
	if req.resumed && c.sessions != nil {
		if err := c.sessions.Delete(); err != nil {
			l.Warn().Err(err).Msg("unable to remove finished session")
		}
	}
	c.metrics.RunFinished(string(models.StatusSucceeded))
	c.progress(req.RunID, iteration, iteration, models.Finished)
	return models.Outcome{
		Status:     models.StatusSucceeded,
		Iterations: iteration,
		Task:       req.Task,
		Code:       a.Generation.Code,
		Reasoning:  a.Generation.Reasoning,
		Result:     a.Result,
		Summary:    a.Evaluation.Rationale,
		Context:    iterationContext,
		ScriptPath: path,
	}
}

func (c *Controller) exhaust(ctx context.Context, l zerolog.Logger, req RunRequest, name string, maxIterations int, iterationContext string, last models.Attempt) models.Outcome {
	l.Warn().Msgf("failed after %d iterations", maxIterations)
	path := c.persist(l, last.Generation.Code, req.Task.Language, name)

	if c.cfg.Resumable && c.sessions != nil && ctx.Err() == nil {
		session := models.Session{
			Task:             req.Task.Description,
			Language:         req.Task.Language,
			CurrentIteration: maxIterations + 1,
			MaxIterations:    maxIterations + c.cfg.ExtendBy,
			Context:          iterationContext,
			GeneratorState:   c.dumpState(c.gen, "generator"),
			EvaluatorState:   c.dumpState(c.eval, "evaluator"),
			Examples:         req.Examples,
		}
		if err := c.sessions.Save(session); err != nil {
			l.Error().Err(err).Msg("unable to save session state")
		} else {
			c.metrics.SessionSaved()
			l.Info().Msg("session saved; resume it with 'resume'")
		}
	}

	c.metrics.RunFinished(string(models.StatusFailed))
	c.progress(req.RunID, maxIterations, maxIterations, models.Failed)
	return models.Outcome{
		Status:     models.StatusFailed,
		Iterations: maxIterations,
		Task:       req.Task,
		Code:       last.Generation.Code,
		Reasoning:  last.Generation.Reasoning,
		Result:     last.Result,
		Summary:    last.Evaluation.Guidance(),
		Context:    iterationContext,
		ScriptPath: path,
	}
}

func (c *Controller) persist(l zerolog.Logger, code string, lang models.Language, name string) string {
	path, err := c.exec.Persist(code, lang, name)
	if err != nil {
		l.Warn().Err(err).Msg("unable to save script")
		return ""
	}
	return path
}

func (c *Controller) oracleError(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %w", ErrOracle, stage, err)
}

func (c *Controller) progress(id uuid.UUID, iteration, total int, state models.State) {
	c.observe(Progress{RunID: id, Iteration: iteration, MaxIterations: total, State: state})
}

func (c *Controller) dumpState(oracle any, name string) json.RawMessage {
	s, ok := oracle.(Stateful)
	if !ok {
		return nil
	}
	raw, err := s.DumpState()
	if err != nil {
		log.Warn().Err(err).Str(logger.AgentNameField, name).Msg("unable to dump oracle state")
		return nil
	}
	return raw
}

func (c *Controller) loadState(oracle any, raw json.RawMessage, name string) {
	s, ok := oracle.(Stateful)
	if !ok || len(raw) == 0 {
		return
	}
	if err := s.LoadState(raw); err != nil {
		log.Warn().Err(err).Str(logger.AgentNameField, name).Msg("ignoring unreadable oracle state")
	}
}
