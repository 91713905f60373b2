package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	langChainPrompts "github.com/tmc/langchaingo/prompts"
	"go-scriptloop/internal/agents/chain"
	"go-scriptloop/pkg/data"
	"go-scriptloop/pkg/models"
	"go-scriptloop/pkg/prompts"
)

var ErrParse = errors.New("unable to parse reasoning")

var ReasoningPrompt = langChainPrompts.NewPromptTemplate(prompts.ExampleReasoning, []string{"Task", "Language", "Code", "IterationContext"})

// Handler writes reusable reasoning for a solution before it is stored as an example.
type Handler struct {
	*chain.Caller
}

func New(llm llms.Model, model string, opts ...chains.ChainCallOption) *Handler {
	return &Handler{Caller: chain.New(chains.NewLLMChain(llm, ReasoningPrompt), prompts.ExampleReasoning, model, opts...)}
}

func (h *Handler) Reason(ctx context.Context, req models.ReasonRequest) (string, error) {
	iterationContext := req.IterationContext
	if iterationContext == "" {
		iterationContext = "No iteration context available"
	}
	answer, err := h.Call(ctx, map[string]any{
		"Task":             req.Task,
		"Language":         string(req.Language),
		"Code":             req.Code,
		"IterationContext": iterationContext,
	})
	if err != nil {
		return "", err
	}

	match, err := data.SanitizeAnswer(answer)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	res := struct {
		Reasoning string `json:"reasoning"`
	}{}
	if err := json.Unmarshal([]byte(match), &res); err != nil {
		return "", fmt.Errorf("%w: unmarshal: %v", ErrParse, err)
	}
	if res.Reasoning == "" {
		return "", fmt.Errorf("%w: no reasoning", ErrParse)
	}
	return res.Reasoning, nil
}
