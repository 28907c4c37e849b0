package extraction

import (
	"regexp"
	"strings"
	"unicode"
)

// headerLines is how much of the top of a receipt counts as its header.
const headerLines = 8

var reCapsLine = regexp.MustCompile(`^[\p{Lu}\s&'.\-]{4,}$`)

// ExtractMerchant matches the merchant dictionary against the receipt header,
// then the whole text, and otherwise returns the first all-caps line.
// Dictionary hits return the dictionary spelling.
func (e *Extractor) ExtractMerchant(text string) string {
	lines := strings.Split(text, "\n")
	header := strings.Join(lines[:min(len(lines), headerLines)], "\n")

	for _, m := range e.rules.merchants {
		if m.re.MatchString(header) {
			return m.name
		}
	}
	for _, m := range e.rules.merchants {
		if m.re.MatchString(text) {
			return m.name
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if reCapsLine.MatchString(line) && countLetters(line) >= 2 {
			return line
		}
	}
	return ""
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
