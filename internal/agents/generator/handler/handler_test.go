package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-scriptloop/internal/agents/chain/chaintest"
	"go-scriptloop/pkg/models"
)

func TestGenerate(t *testing.T) {
	llm := chaintest.New("Sure!\n" + `{"reasoning": "use print", "code": "` + "```python\\nprint({'a': 1})\\n```" + `"}`)
	h := New(llm, "fake")

	gen, err := h.Generate(context.Background(), models.GenerateRequest{Task: "print a dict", Language: models.Python, Context: "This is the first attempt."})
	require.NoError(t, err)
	assert.Equal(t, "use print", gen.Reasoning)
	assert.Equal(t, "print({'a': 1})", gen.Code)
	assert.False(t, gen.Finished)

	prompt := llm.LastPrompt()
	assert.Contains(t, prompt, `"print a dict"`)
	assert.Contains(t, prompt, "This is the first attempt.")
	assert.NotContains(t, prompt, "No script has been run yet.")
}

func TestGenerateFencedFallback(t *testing.T) {
	h := New(chaintest.New("Here you go:\n```r\nx <- 1\nprint(x)\n```\nNote: base R only"), "fake")

	gen, err := h.Generate(context.Background(), models.GenerateRequest{Task: "print one", Language: models.R})
	require.NoError(t, err)
	assert.Equal(t, "x <- 1\nprint(x)", gen.Code)
}

func TestGenerateUnparseable(t *testing.T) {
	h := New(chaintest.New("I cannot help with that."), "fake")

	_, err := h.Generate(context.Background(), models.GenerateRequest{Task: "x", Language: models.Python})
	assert.ErrorIs(t, err, ErrParse)
}

func TestGenerateCombined(t *testing.T) {
	llm := chaintest.New(`{"reasoning": "output is correct", "code": "print(4)", "finished": "true"}`)
	h := NewCombined(llm, "fake")
	require.True(t, h.Combined())

	gen, err := h.Generate(context.Background(), models.GenerateRequest{
		Task:            "print four",
		Language:        models.Python,
		Context:         "Previous attempt failed.",
		ExecutionResult: `{"stdout": "4\n"}`,
	})
	require.NoError(t, err)
	assert.True(t, gen.Finished)
	assert.Contains(t, llm.LastPrompt(), `{"stdout": "4\n"}`)
}

func TestGenerateCombinedFirstAttempt(t *testing.T) {
	llm := chaintest.New(`{"reasoning": "r", "code": "print(4)", "finished": false}`)
	h := NewCombined(llm, "fake")

	_, err := h.Generate(context.Background(), models.GenerateRequest{Task: "print four", Language: models.Python})
	require.NoError(t, err)
	assert.Contains(t, llm.LastPrompt(), "No script has been run yet.")
}
