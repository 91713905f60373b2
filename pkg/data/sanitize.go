package data

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoObject = errors.New("error sanitizing answer")

// SanitizeAnswer extracts the first balanced JSON object from an LLM reply.
// Braces inside string literals are ignored so generated code can carry them.
func SanitizeAnswer(ans string) (string, error) {
	start := strings.IndexByte(ans, '{')
	for start >= 0 {
		if end := objectEnd(ans[start:]); end > 0 {
			return ans[start : start+end], nil
		}
		next := strings.IndexByte(ans[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoObject
}

func objectEnd(s string) int {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// Bool accepts both JSON booleans and the quoted spellings LLMs like to emit.
type Bool bool

func (b *Bool) UnmarshalJSON(raw []byte) error {
	s := strings.Trim(strings.ToLower(strings.TrimSpace(string(raw))), `"`)
	switch s {
	case "true", "yes", "1":
		*b = true
	case "false", "no", "0", "", "null":
		*b = false
	default:
		return fmt.Errorf("not a boolean: %s", raw)
	}
	return nil
}

// FencedBlock returns the body of the first markdown code block in text.
func FencedBlock(text string) (string, bool) {
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	body := text[start+len(fence):]
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return "", false
	}
	body = body[nl+1:]
	end := strings.Index(body, fence)
	if end < 0 {
		return strings.TrimSpace(body), true
	}
	return strings.TrimSpace(body[:end]), true
}
