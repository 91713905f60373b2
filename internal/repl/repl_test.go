package repl

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-scriptloop/internal/loop"
	"go-scriptloop/pkg/models"
)

type fakeLoop struct {
	outcome  models.Outcome
	err      error
	panics   int
	requests []loop.RunRequest
	resumed  []models.Session
}

func (f *fakeLoop) Run(_ context.Context, req loop.RunRequest) (models.Outcome, error) {
	f.requests = append(f.requests, req)
	if f.panics > 0 {
		f.panics--
		panic("provider client exploded")
	}
	out := f.outcome
	out.Task = req.Task
	return out, f.err
}

func (f *fakeLoop) Resume(_ context.Context, session models.Session) (models.Outcome, error) {
	f.resumed = append(f.resumed, session)
	out := f.outcome
	out.Task = models.Task{Description: session.Task, Language: session.Language}
	return out, f.err
}

func (f *fakeLoop) MaxIterations() int {
	return 5
}

type fakeReasoner struct {
	calls []models.ReasonRequest
}

func (f *fakeReasoner) Reason(_ context.Context, req models.ReasonRequest) (string, error) {
	f.calls = append(f.calls, req)
	return "clean reasoning", nil
}

type fakeSessions struct {
	session *models.Session
	deleted int
}

func (f *fakeSessions) Load() (models.Session, bool) {
	if f.session == nil {
		return models.Session{}, false
	}
	return *f.session, true
}

func (f *fakeSessions) Delete() error {
	f.deleted++
	f.session = nil
	return nil
}

type fakeExamples struct {
	stored []models.Example
}

func (f *fakeExamples) Load() []models.Example {
	return f.stored
}

func (f *fakeExamples) Append(ex models.Example) error {
	f.stored = append(f.stored, ex)
	return nil
}

func run(t *testing.T, deps Deps, input string) string {
	t.Helper()
	out := &strings.Builder{}
	require.NoError(t, New(deps, strings.NewReader(input), out).Run(context.Background()))
	return out.String()
}

var success = models.Outcome{
	Status:     models.StatusSucceeded,
	Iterations: 3,
	Code:       "print(42)",
	Reasoning:  "raw reasoning",
	Context:    "Previous attempt failed.",
	ScriptPath: "answer.py",
	Result:     models.ExecutionResult{Success: true, Stdout: "42"},
}

func TestTaskSuccessSavesExample(t *testing.T) {
	l := &fakeLoop{outcome: success}
	reasoner := &fakeReasoner{}
	sessions := &fakeSessions{session: &models.Session{Task: "old"}}
	examples := &fakeExamples{stored: []models.Example{{Task: "earlier", Language: "r"}}}

	out := run(t, Deps{Loop: l, Reasoner: reasoner, Sessions: sessions, Examples: examples},
		"print the answer\nr\n7\ny\ny\nquit\n")

	require.Len(t, l.requests, 1)
	req := l.requests[0]
	assert.Equal(t, "print the answer", req.Task.Description)
	assert.Equal(t, models.R, req.Task.Language)
	assert.Equal(t, 7, req.MaxIterations)
	assert.Len(t, req.Examples, 1)

	assert.Equal(t, 1, sessions.deleted)
	require.Len(t, reasoner.calls, 1)
	assert.Equal(t, "Previous attempt failed.", reasoner.calls[0].IterationContext)

	require.Len(t, examples.stored, 2)
	assert.Equal(t, models.Example{Task: "print the answer", Language: "r", Reasoning: "clean reasoning", Code: "print(42)"}, examples.stored[1])
	assert.Contains(t, out, "Success after 3 attempt(s).")
	assert.Contains(t, out, "Script saved to answer.py")
	assert.Contains(t, out, "Example saved.")
}

func TestFirstTrySuccessKeepsReasoning(t *testing.T) {
	outcome := success
	outcome.Iterations = 1
	reasoner := &fakeReasoner{}
	examples := &fakeExamples{}

	run(t, Deps{Loop: &fakeLoop{outcome: outcome}, Reasoner: reasoner, Examples: examples}, "task\n\n\nyes\ny\n")

	assert.Empty(t, reasoner.calls)
	require.Len(t, examples.stored, 1)
	assert.Equal(t, "raw reasoning", examples.stored[0].Reasoning)
	assert.Equal(t, "python", examples.stored[0].Language)
}

func TestDeclinedExample(t *testing.T) {
	examples := &fakeExamples{}
	out := run(t, Deps{Loop: &fakeLoop{outcome: success}, Reasoner: &fakeReasoner{}, Examples: examples}, "task\n\n\ny\nn\nq\n")
	assert.Empty(t, examples.stored)
	assert.Contains(t, out, "Example discarded.")

	out = run(t, Deps{Loop: &fakeLoop{outcome: success}, Examples: examples}, "task\n\n\nn\nq\n")
	assert.Empty(t, examples.stored)
	assert.NotContains(t, out, "Add this example?")
}

func TestDefaultsOnBadInput(t *testing.T) {
	l := &fakeLoop{outcome: models.Outcome{Status: models.StatusFailed, Iterations: 5}}
	out := run(t, Deps{Loop: l}, "task\ncobol\nzero\nexit\n")

	require.Len(t, l.requests, 1)
	assert.Equal(t, models.Python, l.requests[0].Task.Language)
	assert.Equal(t, 5, l.requests[0].MaxIterations)
	assert.Contains(t, out, `Unknown language "cobol", using python.`)
	assert.Contains(t, out, "Not a positive number, using 5.")
	assert.Contains(t, out, "Failed after 5 attempts.")
}

func TestFailureMentionsCheckpoint(t *testing.T) {
	l := &fakeLoop{outcome: models.Outcome{Status: models.StatusFailed, Iterations: 2, Summary: "still wrong", ScriptPath: "x.py"}}
	sessions := &fakeSessions{session: &models.Session{Task: "task", CurrentIteration: 3, MaxIterations: 7}}
	out := run(t, Deps{Loop: l, Sessions: sessions}, "task\n\n2\n")

	assert.Equal(t, 0, sessions.deleted)
	assert.Contains(t, out, "Last feedback: still wrong")
	assert.Contains(t, out, "Last script saved to x.py")
	assert.Contains(t, out, "Type 'resume' to continue.")
}

func TestResume(t *testing.T) {
	l := &fakeLoop{outcome: models.Outcome{Status: models.StatusFailed, Iterations: 7}}
	session := models.Session{Task: "plot", Language: models.R, CurrentIteration: 3, MaxIterations: 7}
	out := run(t, Deps{Loop: l, Sessions: &fakeSessions{session: &session}}, "resume\nquit\n")

	require.Len(t, l.resumed, 1)
	assert.Equal(t, session, l.resumed[0])
	assert.Contains(t, out, "Resuming: plot (r, attempt 3 of 7)")

	out = run(t, Deps{Loop: l, Sessions: &fakeSessions{}}, "resume\nquit\n")
	assert.Contains(t, out, "No saved session found.")
	assert.Len(t, l.resumed, 1)
}

func TestLoadSeedScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.R")
	require.NoError(t, os.WriteFile(path, []byte("x <- 1\nprint(x)\n"), 0o644))

	l := &fakeLoop{outcome: models.Outcome{Status: models.StatusFailed, Iterations: 1}}
	out := run(t, Deps{Loop: l}, "load:"+path+"\nadd a plot\n\n\nquit\n")

	require.Len(t, l.requests, 1)
	assert.Equal(t, "add a plot", l.requests[0].Task.Description)
	assert.Equal(t, models.R, l.requests[0].Task.Language)
	assert.Equal(t, "x <- 1\nprint(x)", l.requests[0].SeedCode)
	assert.Contains(t, out, "Loaded 2 lines from "+path)
}

func TestErrorsDoNotEndTheShell(t *testing.T) {
	l := &fakeLoop{err: errors.New("oracle failed: generate: timeout")}
	out := run(t, Deps{Loop: l}, "load:/does/not/exist\ntask\n\n\nquit\n")

	assert.Contains(t, out, "Error: load script:")
	assert.Contains(t, out, "Error: oracle failed: generate: timeout")
	assert.Contains(t, out, "Bye.")
	assert.Len(t, l.requests, 1)
}

func TestCancelledContextEndsShell(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := &fakeLoop{}
	out := &strings.Builder{}
	require.NoError(t, New(Deps{Loop: l}, strings.NewReader("task\n\n\n"), out).Run(ctx))
	assert.Empty(t, l.requests)
}

func TestPanicDoesNotEndTheShell(t *testing.T) {
	l := &fakeLoop{panics: 1, outcome: models.Outcome{Status: models.StatusFailed, Iterations: 1}}
	out := run(t, Deps{Loop: l}, "first\n\n\nsecond\n\n\nquit\n")

	assert.Len(t, l.requests, 2)
	assert.Contains(t, out, "Error: internal error: provider client exploded")
	assert.Contains(t, out, "Failed after 1 attempts.")
	assert.Contains(t, out, "Bye.")
}

// lockedBuffer is written by the shell goroutine and read by the test.
type lockedBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func startShell(t *testing.T, deps Deps) (context.CancelFunc, *io.PipeWriter, *lockedBuffer, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	t.Cleanup(func() {
		cancel()
		_ = pw.Close()
	})
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- New(deps, pr, out).Run(ctx)
	}()
	return cancel, pw, out, done
}

func waitDone(t *testing.T, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shell still waiting for input after cancellation")
	}
}

func TestInterruptAtTaskPrompt(t *testing.T) {
	l := &fakeLoop{}
	cancel, pw, out, done := startShell(t, Deps{Loop: l})

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Task> ") }, 2*time.Second, 10*time.Millisecond)
	cancel()
	waitDone(t, done)

	// input typed after the interrupt is never acted on
	go func() { _, _ = pw.Write([]byte("write a script\npython\n3\n")) }()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, l.requests)
	assert.NotContains(t, out.String(), "Working on:")
	assert.Contains(t, out.String(), "Cancelled.")
}

func TestInterruptAtLanguagePrompt(t *testing.T) {
	l := &fakeLoop{}
	cancel, pw, out, done := startShell(t, Deps{Loop: l})

	go func() { _, _ = pw.Write([]byte("write a script\n")) }()
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Language (python/r)") }, 2*time.Second, 10*time.Millisecond)
	cancel()
	waitDone(t, done)

	assert.Empty(t, l.requests)
	assert.NotContains(t, out.String(), "Max attempts")
}
