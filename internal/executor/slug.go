package executor

import (
	"regexp"
	"strings"
)

// maxSlugLength is counted in characters, not bytes.
const maxSlugLength = 50

var (
	specialChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	separators   = regexp.MustCompile(`[-\s]+`)
)

// Slug turns a task description into a file name stem.
func Slug(task string) string {
	s := specialChars.ReplaceAllString(task, "")
	s = separators.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if runes := []rune(s); len(runes) > maxSlugLength {
		s = strings.TrimRight(string(runes[:maxSlugLength]), "_")
	}
	if s == "" {
		return "script"
	}
	return s
}
