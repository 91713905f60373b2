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

var ErrParse = errors.New("unable to parse generated code")

var (
	GeneratePrompt = langChainPrompts.NewPromptTemplate(prompts.GenerateCode, []string{"Task", "Language", "Context"})
	CombinedPrompt = langChainPrompts.NewPromptTemplate(prompts.GenerateAndJudge, []string{"Task", "Language", "Context", "ExecutionResult"})
)

type Handler struct {
	*chain.Caller
	combined bool
}

// New builds a generator that only writes code.
func New(llm llms.Model, model string, opts ...chains.ChainCallOption) *Handler {
	return &Handler{Caller: chain.New(chains.NewLLMChain(llm, GeneratePrompt), prompts.GenerateCode, model, opts...)}
}

// NewCombined builds a generator that also reports when the task is finished.
func NewCombined(llm llms.Model, model string, opts ...chains.ChainCallOption) *Handler {
	return &Handler{
		Caller:   chain.New(chains.NewLLMChain(llm, CombinedPrompt), prompts.GenerateAndJudge, model, opts...),
		combined: true,
	}
}

func (h *Handler) Combined() bool {
	return h.combined
}

func (h *Handler) Generate(ctx context.Context, req models.GenerateRequest) (models.Generation, error) {
	result := req.ExecutionResult
	if result == "" {
		result = "No script has been run yet."
	}
	answer, err := h.Call(ctx, map[string]any{
		"Task":            req.Task,
		"Language":        string(req.Language),
		"Context":         req.Context,
		"ExecutionResult": result,
	})
	if err != nil {
		return models.Generation{}, err
	}
	return parseGeneration(answer)
}

type generation struct {
	Reasoning string    `json:"reasoning"`
	Code      string    `json:"code"`
	Finished  data.Bool `json:"finished"`
}

// parseGeneration reads the json answer, falling back to the first fenced
// block when the model ignored the format.
func parseGeneration(answer string) (models.Generation, error) {
	if match, err := data.SanitizeAnswer(answer); err == nil {
		res := generation{}
		if err := json.Unmarshal([]byte(match), &res); err == nil && res.Code != "" {
			return models.Generation{
				Reasoning: res.Reasoning,
				Code:      data.CleanCode(res.Code),
				Finished:  bool(res.Finished),
			}, nil
		}
	}
	if code, ok := data.FencedBlock(answer); ok && code != "" {
		return models.Generation{Code: data.CleanCode(code)}, nil
	}
	return models.Generation{}, fmt.Errorf("%w: %.80q", ErrParse, answer)
}
