package insight

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"You must act immediately", "You act"},
		{"  We need to FIX this.  ", "this."},
		{"Should be fine.\n\n\n\nStable.", "be fine.\n\nStable."},
		{"A mustard field is unaffected.", "A mustard field is unaffected."},
		{"Teams\t\tmay take action later.", "Teams may later."},
		{"", ""},
	}
	for _, c := range cases {
		if got := Sanitize(c.in); got != c.want {
			t.Errorf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeTruncates(t *testing.T) {
	long := strings.Repeat("word ", 200)
	got := Sanitize(long)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got suffix %q", got[len(got)-10:])
	}
	if n := utf8.RuneCountInString(got); n > MaxChars+1 {
		t.Errorf("length %d exceeds %d", n, MaxChars+1)
	}

	sentence := strings.Repeat("a", MaxChars-1) + ". trailing text"
	got = Sanitize(sentence)
	if !strings.HasSuffix(got, ".") || strings.HasSuffix(got, "…") {
		t.Errorf("cut on a sentence end must not add an ellipsis: %q", got[len(got)-5:])
	}
}

func TestSanitizeCountsRunes(t *testing.T) {
	in := strings.Repeat("가", MaxChars)
	if got := Sanitize(in); got != in {
		t.Error("text at exactly MaxChars runes must be kept intact")
	}
}

func TestOneLine(t *testing.T) {
	got := OneLine("line one\nline   two\t three", 12)
	if got != "line one lin…" {
		t.Errorf("OneLine = %q", got)
	}
	if got := OneLine("short", 12); got != "short" {
		t.Errorf("OneLine = %q", got)
	}
}
