package document

import (
	"strconv"
	"strings"
)

// Untitled is the base name of documents created without a name.
const Untitled = "Untitled"

// UniqueName returns base if no name in taken uses it, otherwise the first
// free "base 2", "base 3", …
func UniqueName(base string, taken func(name string) bool) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = Untitled
	}
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + " " + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// TrimTrailingWhitespace strips spaces and tabs at the end of every line.
// Line endings, including CRLF, are kept.
func TrimTrailingWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		cr := strings.HasSuffix(line, "\r")
		line = strings.TrimRight(strings.TrimSuffix(line, "\r"), " \t")
		if cr {
			line += "\r"
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
