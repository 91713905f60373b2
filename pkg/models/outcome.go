package models

import (
	"encoding/json"
	"errors"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome is the terminal result of a run. Every field is populated on both
// branches; Status tells them apart.
type Outcome struct {
	Status     Status          `json:"status"`
	Iterations int             `json:"iterations"`
	Task       Task            `json:"task"`
	Code       string          `json:"code"`
	Reasoning  string          `json:"reasoning"`
	Result     ExecutionResult `json:"result"`
	Summary    string          `json:"summary"`
	Context    string          `json:"context"`
	ScriptPath string          `json:"script_path"`
}

func (o Outcome) Success() bool {
	return o.Status == StatusSucceeded
}

type Example struct {
	Task      string `json:"task"`
	Language  string `json:"language"`
	Reasoning string `json:"reasoning"`
	Code      string `json:"code"`
}

// Session is the checkpoint of a run that exhausted its budget.
type Session struct {
	Task             string          `json:"task"`
	Language         Language        `json:"language"`
	CurrentIteration int             `json:"current_iteration"`
	MaxIterations    int             `json:"max_iterations"`
	Context          string          `json:"context"`
	GeneratorState   json.RawMessage `json:"generator_state,omitempty"`
	EvaluatorState   json.RawMessage `json:"evaluator_state,omitempty"`
	Examples         []Example       `json:"examples"`
}

func (s Session) Validate() error {
	if s.Task == "" {
		return errors.New("session has no task")
	}
	if s.CurrentIteration < 1 {
		return errors.New("session iteration must be positive")
	}
	if s.CurrentIteration > s.MaxIterations {
		return errors.New("session iteration exceeds its budget")
	}
	return nil
}
