// internal/insight/sanitize.go
package insight

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxChars bounds the sanitized insight length in characters.
const MaxChars = 650

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	repeatedBlanks = regexp.MustCompile(`[ \t]{2,}`)

	// Directive and urgency phrases are removed, matched as whole words.
	bannedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmust\b`),
		regexp.MustCompile(`(?i)\bshould\b`),
		regexp.MustCompile(`(?i)\bimmediately\b`),
		regexp.MustCompile(`(?i)\burgent\b`),
		regexp.MustCompile(`(?i)\bguarantee\b`),
		regexp.MustCompile(`(?i)\bfix\b`),
		regexp.MustCompile(`(?i)\btake action\b`),
		regexp.MustCompile(`(?i)\brecommend\b`),
		regexp.MustCompile(`(?i)\byou need to\b`),
		regexp.MustCompile(`(?i)\bwe need to\b`),
	}
)

// Sanitize normalizes model output: it collapses blank lines, strips
// directive words, squeezes runs of spaces and caps the length at MaxChars,
// appending an ellipsis when the cut does not end a sentence.
func Sanitize(text string) string {
	t := strings.TrimSpace(text)
	t = excessNewlines.ReplaceAllString(t, "\n\n")
	for _, re := range bannedPatterns {
		t = re.ReplaceAllString(t, "")
	}
	t = strings.TrimSpace(repeatedBlanks.ReplaceAllString(t, " "))

	if utf8.RuneCountInString(t) > MaxChars {
		t = strings.TrimRightFunc(string([]rune(t)[:MaxChars]), isSpace)
		if !strings.HasSuffix(t, ".") && !strings.HasSuffix(t, "!") && !strings.HasSuffix(t, "?") {
			t += "…"
		}
	}
	return t
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// OneLine collapses whitespace in s and cuts it to max characters plus an
// ellipsis. It keeps error details on a single log line.
func OneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max]) + "…"
	}
	return s
}
