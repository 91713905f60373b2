// Package chain holds what the oracle handlers share: calling a langchaingo
// chain, keeping the question/answer transcript and checkpointing it.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/chains"
	"go-scriptloop/pkg/memory/buffer"
	"go-scriptloop/pkg/template"
)

const transcriptLimit = 20

var ErrEmptyAnswer = errors.New("empty answer")

type Caller struct {
	chain  chains.Chain
	prompt string
	model  string
	opts   []chains.ChainCallOption
	memory buffer.Memories
}

func New(chain chains.Chain, prompt, model string, opts ...chains.ChainCallOption) *Caller {
	return &Caller{
		chain:  chain,
		prompt: prompt,
		model:  model,
		opts:   opts,
		memory: buffer.Memories{Items: make([]buffer.Memory, 0), Limit: transcriptLimit},
	}
}

// Call runs the chain with the subset of inputs it declares and records the
// rendered question with its answer.
func (c *Caller) Call(ctx context.Context, inputs map[string]any) (string, error) {
	values := make(map[string]any, len(inputs))
	for _, key := range c.chain.GetInputKeys() {
		values[key] = inputs[key]
	}

	completion, err := chains.Call(ctx, c.chain, values, c.opts...)
	if err != nil {
		return "", fmt.Errorf("call: %w", err)
	}
	answer, _ := completion["text"].(string)
	if answer == "" {
		return "", ErrEmptyAnswer
	}

	question, err := template.Parse(c.prompt, values)
	if err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}
	c.memory.Add(buffer.Memory{Question: question, Answer: answer})
	return answer, nil
}

func (c *Caller) Transcript() []buffer.Memory {
	return c.memory.Items
}

type state struct {
	Model    string          `json:"model"`
	Memories buffer.Memories `json:"transcript"`
}

func (c *Caller) DumpState() (json.RawMessage, error) {
	return json.Marshal(state{Model: c.model, Memories: c.memory})
}

// LoadState restores the transcript. A state written for another model is
// still accepted; only the transcript carries over.
func (c *Caller) LoadState(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	c.memory.Items = append(make([]buffer.Memory, 0, len(s.Memories.Items)), s.Memories.Items...)
	return nil
}
