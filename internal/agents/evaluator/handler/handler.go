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

var ErrParse = errors.New("unable to parse evaluation")

var EvaluatePrompt = langChainPrompts.NewPromptTemplate(prompts.EvaluateGoal, []string{"Task", "Language", "Code", "ExecutionResult"})

type Handler struct {
	*chain.Caller
}

func New(llm llms.Model, model string, opts ...chains.ChainCallOption) *Handler {
	return &Handler{Caller: chain.New(chains.NewLLMChain(llm, EvaluatePrompt), prompts.EvaluateGoal, model, opts...)}
}

func (h *Handler) Evaluate(ctx context.Context, req models.EvaluateRequest) (models.Evaluation, error) {
	answer, err := h.Call(ctx, map[string]any{
		"Task":            req.Task,
		"Language":        string(req.Language),
		"Code":            req.Code,
		"ExecutionResult": req.ExecutionResult,
	})
	if err != nil {
		return models.Evaluation{}, err
	}
	return parseEvaluation(answer)
}

type evaluation struct {
	Rationale string    `json:"rationale"`
	Achieved  data.Bool `json:"achieved"`
	Feedback  string    `json:"feedback"`
}

func parseEvaluation(answer string) (models.Evaluation, error) {
	match, err := data.SanitizeAnswer(answer)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	res := evaluation{}
	if err := json.Unmarshal([]byte(match), &res); err != nil {
		return models.Evaluation{}, fmt.Errorf("%w: unmarshal: %v", ErrParse, err)
	}
	return models.Evaluation{Achieved: bool(res.Achieved), Rationale: res.Rationale, Feedback: res.Feedback}, nil
}
