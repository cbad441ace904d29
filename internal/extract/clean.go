package extract

import (
	"regexp"
	"strings"
)

// disallowedChars is everything outside the characters invoice fields can
// legitimately contain. OCR noise outside this set becomes a space so
// token boundaries survive.
var disallowedChars = regexp.MustCompile(`[^a-zA-Z0-9\s.,:;\-/()&'$€£#%]`)

// spaceRuns collapses runs of spaces and tabs but deliberately not
// newlines: line structure carries signal for vendor detection.
var spaceRuns = regexp.MustCompile(`[ \t]+`)

// cleanText normalizes OCR output for pattern matching. Newlines are
// preserved, CRLF is folded to LF, junk characters become spaces, and
// horizontal whitespace runs collapse to one space per line.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = disallowedChars.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	return strings.Join(lines, "\n")
}

func hasContent(text string) bool {
	return strings.TrimSpace(text) != ""
}
