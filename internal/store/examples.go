package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"go-scriptloop/pkg/models"
)

// DefaultRelevantLimit is how many examples are injected into a first prompt.
const DefaultRelevantLimit = 2

// ExampleStore is an append-only JSON array of past successes.
type ExampleStore struct {
	path string
}

func NewExampleStore(path string) *ExampleStore {
	return &ExampleStore{path: path}
}

func (s *ExampleStore) Path() string {
	return s.path
}

// Load never fails: a missing or malformed file yields no examples.
func (s *ExampleStore) Load() []models.Example {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file", s.path).Msg("unable to read examples")
		}
		return []models.Example{}
	}
	var examples []models.Example
	if err := json.Unmarshal(b, &examples); err != nil {
		log.Warn().Err(err).Str("file", s.path).Msg("ignoring malformed examples file")
		return []models.Example{}
	}
	if examples == nil {
		examples = []models.Example{}
	}
	return examples
}

func (s *ExampleStore) Append(ex models.Example) error {
	examples := append(s.Load(), ex)
	if err := writeJSON(s.path, examples); err != nil {
		return fmt.Errorf("save examples: %w", err)
	}
	return nil
}

// Relevant keeps examples in lang whose task shares a word with task, in
// stored order, up to limit.
func Relevant(examples []models.Example, task string, lang models.Language, limit int) []models.Example {
	if limit <= 0 {
		return []models.Example{}
	}
	words := strings.Fields(strings.ToLower(task))
	relevant := make([]models.Example, 0, limit)
	for _, ex := range examples {
		if len(relevant) >= limit {
			break
		}
		if !strings.EqualFold(ex.Language, string(lang)) {
			continue
		}
		if sharesWord(strings.Fields(strings.ToLower(ex.Task)), words) {
			relevant = append(relevant, ex)
		}
	}
	return relevant
}

func sharesWord(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, w := range a {
		seen[w] = struct{}{}
	}
	for _, w := range b {
		if _, ok := seen[w]; ok {
			return true
		}
	}
	return false
}

// FormatExamples renders examples as a block appended to the first context.
func FormatExamples(examples []models.Example) string {
	if len(examples) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nRelevant examples:")
	for i, ex := range examples {
		fmt.Fprintf(&sb, "\n\nExample %d:\nTask: %s\nReasoning: %s\nCode:\n```%s\n%s\n```",
			i+1, ex.Task, ex.Reasoning, ex.Language, ex.Code)
	}
	return sb.String()
}
