package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-scriptloop/internal/loop"
	"go-scriptloop/pkg/messages"
	"go-scriptloop/pkg/models"
)

type fakeController struct {
	release  chan struct{}
	running  atomic.Int32
	overlaps atomic.Int32

	mu       sync.Mutex
	requests []loop.RunRequest
}

func (f *fakeController) Run(_ context.Context, req loop.RunRequest) (models.Outcome, error) {
	if f.running.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.running.Add(-1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return models.Outcome{Status: models.StatusSucceeded, Iterations: 1, Task: req.Task}, nil
}

func (f *fakeController) PrepareResume(session models.Session) (loop.RunRequest, error) {
	if session.Task == "" {
		return loop.RunRequest{}, errors.New("no task")
	}
	return loop.RunRequest{
		Task:           models.Task{Description: session.Task, Language: session.Language},
		StartIteration: session.CurrentIteration,
		MaxIterations:  session.MaxIterations,
	}, nil
}

type fakeExamples []models.Example

func (f fakeExamples) Load() []models.Example {
	return f
}

type finished struct {
	id      uuid.UUID
	outcome models.Outcome
	err     error
}

type chanTracker chan finished

func (c chanTracker) Finish(id uuid.UUID, outcome models.Outcome, err error) {
	c <- finished{id, outcome, err}
}

func spawn(t *testing.T, controller Controller, examples ExampleSource, tracker Tracker) (*actor.RootContext, *actor.PID) {
	t.Helper()
	root := actor.NewActorSystem().Root
	pid := root.Spawn(actor.PropsFromProducer(New(context.Background(), controller, examples, tracker)))
	t.Cleanup(func() { root.Stop(pid) })
	return root, pid
}

func wait(t *testing.T, tracker chanTracker) finished {
	t.Helper()
	select {
	case f := <-tracker:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return finished{}
	}
}

func TestRunnerRunsInOrder(t *testing.T) {
	controller := &fakeController{}
	tracker := make(chanTracker, 4)
	examples := fakeExamples{{Task: "t", Language: "python", Code: "c"}}
	root, pid := spawn(t, controller, examples, tracker)

	first, second := uuid.New(), uuid.New()
	root.Send(pid, messages.NewRun{RunID: first, Task: models.Task{Description: "one", Language: models.Python}, MaxIterations: 2})
	root.Send(pid, messages.NewRun{RunID: second, Task: models.Task{Description: "two", Language: models.R}})

	a := wait(t, tracker)
	b := wait(t, tracker)
	assert.Equal(t, first, a.id)
	assert.Equal(t, second, b.id)
	assert.NoError(t, a.err)
	assert.Equal(t, "one", a.outcome.Task.Description)
	assert.Equal(t, int32(0), controller.overlaps.Load())

	controller.mu.Lock()
	defer controller.mu.Unlock()
	require.Len(t, controller.requests, 2)
	assert.Equal(t, first, controller.requests[0].RunID)
	assert.Equal(t, 2, controller.requests[0].MaxIterations)
	assert.Equal(t, []models.Example(examples), controller.requests[0].Examples)
}

func TestRunnerResume(t *testing.T) {
	controller := &fakeController{}
	tracker := make(chanTracker, 2)
	root, pid := spawn(t, controller, nil, tracker)

	id := uuid.New()
	root.Send(pid, messages.ResumeRun{RunID: id, Session: models.Session{Task: "again", Language: models.Python, CurrentIteration: 4, MaxIterations: 8}})
	f := wait(t, tracker)
	assert.Equal(t, id, f.id)
	require.NoError(t, f.err)

	root.Send(pid, messages.ResumeRun{RunID: uuid.New(), Session: models.Session{}})
	f = wait(t, tracker)
	assert.Error(t, f.err)

	controller.mu.Lock()
	defer controller.mu.Unlock()
	require.Len(t, controller.requests, 1)
	assert.Equal(t, 4, controller.requests[0].StartIteration)
	assert.Equal(t, id, controller.requests[0].RunID)
}

func TestRunnerStatus(t *testing.T) {
	controller := &fakeController{release: make(chan struct{})}
	tracker := make(chanTracker, 2)
	root, pid := spawn(t, controller, nil, tracker)

	id := uuid.New()
	root.Send(pid, messages.NewRun{RunID: id, Task: models.Task{Description: "slow", Language: models.Python}})
	root.Send(pid, messages.NewRun{RunID: uuid.New(), Task: models.Task{Description: "next", Language: models.Python}})

	require.Eventually(t, func() bool {
		res, err := root.RequestFuture(pid, messages.GetStatus{}, time.Second).Result()
		if err != nil {
			return false
		}
		status, ok := res.(messages.Status)
		return ok && status.Current == id && status.Queued == 1
	}, 5*time.Second, 10*time.Millisecond)

	close(controller.release)
	wait(t, tracker)
	wait(t, tracker)

	res, err := root.RequestFuture(pid, messages.GetStatus{}, time.Second).Result()
	require.NoError(t, err)
	status := res.(messages.Status)
	assert.Equal(t, models.Idle, status.State)
	assert.Equal(t, uuid.Nil, status.Current)
}
