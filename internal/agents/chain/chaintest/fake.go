// Package chaintest provides a scripted llms.Model for handler tests.
package chaintest

import (
	"context"
	"errors"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

var ErrExhausted = errors.New("no more answers")

// FakeLLM answers prompts from a fixed script and remembers what it was asked.
type FakeLLM struct {
	mu      sync.Mutex
	Answers []string
	Prompts []string
	Err     error
}

func New(answers ...string) *FakeLLM {
	return &FakeLLM{Answers: answers}
}

func (f *FakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	for _, m := range messages {
		for _, p := range m.Parts {
			if text, ok := p.(llms.TextContent); ok {
				f.Prompts = append(f.Prompts, text.Text)
			}
		}
	}
	if len(f.Answers) == 0 {
		return nil, ErrExhausted
	}
	answer := f.Answers[0]
	f.Answers = f.Answers[1:]
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: answer}}}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func (f *FakeLLM) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Prompts) == 0 {
		return ""
	}
	return f.Prompts[len(f.Prompts)-1]
}
