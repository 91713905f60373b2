package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-scriptloop/internal/agents/chain/chaintest"
	"go-scriptloop/pkg/models"
)

func TestEvaluate(t *testing.T) {
	llm := chaintest.New(`{"rationale": "printed 4", "achieved": true, "feedback": ""}`)
	h := New(llm, "fake")

	res := models.ExecutionResult{Success: true, Stdout: "4\n"}
	ev, err := h.Evaluate(context.Background(), models.EvaluateRequest{Task: "print 2+2", Language: models.Python, Code: "print(2+2)", ExecutionResult: res.String()})
	require.NoError(t, err)
	assert.True(t, ev.Achieved)
	assert.Equal(t, "printed 4", ev.Rationale)
	assert.Equal(t, "printed 4", ev.Guidance())

	prompt := llm.LastPrompt()
	assert.Contains(t, prompt, "print(2+2)")
	assert.Contains(t, prompt, `"returncode": 0`)
}

func TestEvaluateFeedback(t *testing.T) {
	h := New(chaintest.New(`verdict: {"rationale": "crashed", "achieved": "false", "feedback": "import numpy first"}`), "fake")

	ev, err := h.Evaluate(context.Background(), models.EvaluateRequest{Task: "t", Language: models.Python})
	require.NoError(t, err)
	assert.False(t, ev.Achieved)
	assert.Equal(t, "import numpy first", ev.Guidance())
}

func TestEvaluateErrors(t *testing.T) {
	_, err := New(chaintest.New("looks fine to me"), "fake").Evaluate(context.Background(), models.EvaluateRequest{Task: "t"})
	assert.ErrorIs(t, err, ErrParse)

	_, err = New(chaintest.New(`{"achieved": "perhaps"}`), "fake").Evaluate(context.Background(), models.EvaluateRequest{Task: "t"})
	assert.ErrorIs(t, err, ErrParse)

	boom := errors.New("rate limited")
	_, err = New(&chaintest.FakeLLM{Err: boom}, "fake").Evaluate(context.Background(), models.EvaluateRequest{Task: "t"})
	assert.ErrorContains(t, err, boom.Error())
}

func TestEvaluatorState(t *testing.T) {
	h := New(chaintest.New(`{"rationale": "ok", "achieved": true}`), "fake")
	_, err := h.Evaluate(context.Background(), models.EvaluateRequest{Task: "t"})
	require.NoError(t, err)

	raw, err := h.DumpState()
	require.NoError(t, err)
	restored := New(chaintest.New(), "fake")
	require.NoError(t, restored.LoadState(raw))
	assert.Len(t, restored.Transcript(), 1)
}
