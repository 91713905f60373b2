package data

import "strings"

const fence = "```"

// prose markers that LLMs tend to append after the script
var prosePrefixes = []string{
	"Note:",
	"Key ",
	"- ",
	"* ",
	"This ",
	"The ",
	"You'll need",
	"Install",
	"pip install",
}

// CleanCode strips markdown fences and trailing explanations from generated
// code. It is a best-effort filter and is idempotent.
func CleanCode(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")

	fenced := false
	for len(lines) > 0 {
		line := strings.TrimSpace(lines[0])
		if strings.HasPrefix(line, fence) {
			fenced = true
		} else if line != "" {
			break
		}
		lines = lines[1:]
	}

	// anything after the closing fence is commentary
	if fenced {
		for i, line := range lines {
			if strings.TrimSpace(line) == fence {
				lines = lines[:i]
				break
			}
		}
	}

	end := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, fence) || isProse(line) {
			end = i
			continue
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines[:end], "\n"))
}

func isProse(line string) bool {
	for _, p := range prosePrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
