package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go-scriptloop/internal/loop"
	"go-scriptloop/pkg/models"
)

// Run is the externally visible status of one submitted run.
type Run struct {
	ID            uuid.UUID       `json:"id"`
	Task          string          `json:"task"`
	Language      models.Language `json:"language"`
	State         models.State    `json:"state"`
	Iteration     int             `json:"iteration"`
	MaxIterations int             `json:"max_iterations"`
	Resume        bool            `json:"resume"`
	Outcome       *models.Outcome `json:"outcome,omitempty"`
	Error         string          `json:"error,omitempty"`
	Submitted     time.Time       `json:"submitted"`
	Ended         *time.Time      `json:"ended,omitempty"`
}

// Registry tracks submitted runs. It is written by the runner actor and the
// loop observer and read by http handlers.
type Registry struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*Run
}

func NewRegistry() *Registry {
	return &Registry{
		runs: map[uuid.UUID]*Run{},
	}
}

func (r *Registry) Add(id uuid.UUID, task models.Task, maxIterations int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(id, task, maxIterations, false)
}

// AddResume registers a resume of the saved session for task unless one is
// already queued or running, in which case it returns that run's id and false.
func (r *Registry) AddResume(id uuid.UUID, task models.Task, maxIterations int) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.Resume && run.Ended == nil && run.Task == task.Description && run.Language == task.Language {
			return run.ID, false
		}
	}
	r.add(id, task, maxIterations, true)
	return id, true
}

func (r *Registry) add(id uuid.UUID, task models.Task, maxIterations int, resume bool) {
	r.runs[id] = &Run{
		ID:            id,
		Task:          task.Description,
		Language:      task.Language,
		State:         models.Init,
		MaxIterations: maxIterations,
		Resume:        resume,
		Submitted:     time.Now().UTC(),
	}
}

// Progress is a loop observer.
func (r *Registry) Progress(p loop.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[p.RunID]
	if !ok || run.Ended != nil {
		return
	}
	run.State = p.State
	run.Iteration = p.Iteration
	run.MaxIterations = p.MaxIterations
}

func (r *Registry) Finish(id uuid.UUID, outcome models.Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	run.Ended = &now
	if err != nil {
		run.State = models.Failed
		run.Error = err.Error()
		return
	}
	run.Outcome = &outcome
	run.Iteration = outcome.Iterations
	if outcome.Success() {
		run.State = models.Finished
	} else {
		run.State = models.Failed
	}
}

func (r *Registry) Get(id uuid.UUID) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// List returns every run, oldest first.
func (r *Registry) List() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Submitted.Before(out[j].Submitted) })
	return out
}
