package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"go-scriptloop/pkg/logger"
	"go-scriptloop/pkg/messages"
	"go-scriptloop/pkg/models"
)

type SessionSource interface {
	Load() (models.Session, bool)
}

type ExampleSource interface {
	Load() []models.Example
}

type newRun struct {
	Task          string `json:"task"`
	Language      string `json:"language"`
	MaxIterations int    `json:"max_iterations"`
	SeedCode      string `json:"seed_code"`
}

type runCreated struct {
	Id string `json:"id"`
}

type runnerStatus struct {
	State   models.State `json:"state"`
	Current string       `json:"current,omitempty"`
	Queued  int          `json:"queued"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	ac       *actor.RootContext
	runner   *actor.PID
	runs     *Registry
	sessions SessionSource
	examples ExampleSource
	gatherer prometheus.Gatherer
	router   chi.Router
	server   *http.Server
}

type Option func(*Server)

func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func New(ac *actor.RootContext, runner *actor.PID, runs *Registry, sessions SessionSource, examples ExampleSource, addr string, opts ...Option) *Server {
	s := &Server{
		ac:       ac,
		runner:   runner,
		runs:     runs,
		sessions: sessions,
		examples: examples,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(logMiddleware())
	r.Post("/runs", s.createRun)
	r.Post("/runs/resume", s.resumeRun)
	r.Get("/runs", s.listRuns)
	r.Get("/runs/{id}", s.getRun)
	r.Get("/status", s.getStatus)
	r.Get("/examples", s.listExamples)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router = r

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("new run request")
	cmd := newRun{}
	if err := unmarshalRequestBody(r, &cmd); err != nil {
		log.Debug().Err(err).Msg("cannot parse body")
		writeError(w, r, http.StatusBadRequest, "unable to parse body")
		return
	}
	if cmd.Task == "" {
		writeError(w, r, http.StatusBadRequest, "task is required")
		return
	}
	lang := models.Python
	if cmd.Language != "" {
		lang = models.ParseLanguage(cmd.Language)
	}
	if !lang.Supported() {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unsupported language %q", cmd.Language))
		return
	}
	if cmd.MaxIterations < 0 {
		writeError(w, r, http.StatusBadRequest, "max_iterations must not be negative")
		return
	}

	id := uuid.New()
	task := models.Task{Description: cmd.Task, Language: lang}
	s.runs.Add(id, task, cmd.MaxIterations)
	s.ac.Send(s.runner, messages.NewRun{RunID: id, Task: task, MaxIterations: cmd.MaxIterations, SeedCode: cmd.SeedCode})

	log.Debug().Str(logger.RunIDField, id.String()).Msg("run has been queued")
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, runCreated{id.String()})
}

func (s *Server) resumeRun(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Load()
	if !ok {
		writeError(w, r, http.StatusNotFound, "no saved session")
		return
	}

	task := models.Task{Description: session.Task, Language: session.Language}
	id, ok := s.runs.AddResume(uuid.New(), task, session.MaxIterations)
	if !ok {
		log.Debug().Str(logger.RunIDField, id.String()).Msg("resume already in progress")
		writeError(w, r, http.StatusConflict, fmt.Sprintf("session is already being resumed by run %s", id))
		return
	}
	s.ac.Send(s.runner, messages.ResumeRun{RunID: id, Session: session})

	log.Debug().Str(logger.RunIDField, id.String()).Msg("resume has been queued")
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, runCreated{id.String()})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		log.Debug().Msg("cannot parse id")
		writeError(w, r, http.StatusBadRequest, "unable to parse id")
		return
	}
	run, ok := s.runs.Get(id)
	if !ok {
		log.Debug().Str(logger.RunIDField, idParam).Msg("cannot find id")
		writeError(w, r, http.StatusNotFound, "unknown run")
		return
	}
	render.JSON(w, r, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.runs.List())
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	future := s.ac.RequestFuture(s.runner, messages.GetStatus{}, 5*time.Second)
	res, err := future.Result()
	if err != nil {
		log.Error().Err(err).Msg("unable to get status from runner")
		writeError(w, r, http.StatusInternalServerError, "runner unavailable")
		return
	}
	status, ok := res.(messages.Status)
	if !ok {
		log.Error().Msgf("unknown status from runner: %v", res)
		writeError(w, r, http.StatusInternalServerError, "runner unavailable")
		return
	}
	out := runnerStatus{State: status.State, Queued: status.Queued}
	if status.Current != uuid.Nil {
		out.Current = status.Current.String()
	}
	render.JSON(w, r, out)
}

func (s *Server) listExamples(w http.ResponseWriter, r *http.Request) {
	examples := s.examples.Load()
	if examples == nil {
		examples = []models.Example{}
	}
	render.JSON(w, r, examples)
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server starting")
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

func logMiddleware() func(http.Handler) http.Handler {
	c := alice.New()
	c = c.Append(hlog.NewHandler(log.Logger))
	c = c.Append(hlog.RemoteAddrHandler("ip"))
	c = c.Append(hlog.UserAgentHandler("agent"))
	c = c.Append(hlog.RequestIDHandler("req_id", "Request-Id"))
	c = c.Append(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("verb", r.Method).
			Stringer("url", r.URL).
			Int("size", size).
			Int("status", status).
			Int64("duration", duration.Milliseconds()).
			Msg("REQ")
	}))

	return c.Then
}

func unmarshalRequestBody(req *http.Request, output interface{}) error {
	if req.Body == nil {
		return errors.New("invalid body in request")
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		return err
	}
	if err = req.Body.Close(); err != nil {
		return err
	}
	return json.Unmarshal(body, output)
}
