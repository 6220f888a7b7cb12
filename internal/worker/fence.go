package worker

import (
	"regexp"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("(?i)^```[a-z0-9]*[ \t]*\r?\n")
	trailingFence = regexp.MustCompile("\r?\n?```[ \t]*$")
)

// StripCodeFence removes a surrounding fenced-code block the model may
// wrap its output in, regardless of the language tag. Text without a
// surrounding fence passes through unchanged, so stripping twice is a
// no-op.
func StripCodeFence(s string) string {
	out := strings.TrimSpace(s)
	out = leadingFence.ReplaceAllString(out, "")
	out = trailingFence.ReplaceAllString(out, "")
	return out
}
