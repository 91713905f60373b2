package models

import (
	"encoding/json"
	"strings"
)

type Language string

const (
	Python Language = "python"
	R      Language = "r"
)

// Languages lists the tags an interpreter is known for.
var Languages = []Language{Python, R}

// ParseLanguage normalises a user supplied tag. Unknown tags are returned
// as-is so the executor can reject them with a descriptive result.
func ParseLanguage(s string) Language {
	return Language(strings.ToLower(strings.TrimSpace(s)))
}

func (l Language) Supported() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}

type Task struct {
	Description string   `json:"task"`
	Language    Language `json:"language"`
}

type ExecutionResult struct {
	Success    bool   `json:"success"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
}

// String renders the result the way the oracles and the retry context see it.
func (r ExecutionResult) String() string {
	b, _ := json.MarshalIndent(r, "", "  ")
	return string(b)
}

type Generation struct {
	Reasoning string `json:"reasoning"`
	Code      string `json:"code"`
	Finished  bool   `json:"finished"`
}

type Evaluation struct {
	Achieved  bool   `json:"achieved"`
	Rationale string `json:"rationale"`
	Feedback  string `json:"feedback,omitempty"`
}

// Guidance is the text folded into the next attempt's context.
func (e Evaluation) Guidance() string {
	if strings.TrimSpace(e.Feedback) != "" {
		return e.Feedback
	}
	return e.Rationale
}

type Attempt struct {
	Iteration  int             `json:"iteration"`
	Generation Generation      `json:"generation"`
	Result     ExecutionResult `json:"result"`
	Evaluation Evaluation      `json:"evaluation"`
}
