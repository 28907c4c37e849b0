package extraction

import (
	"regexp"
	"strings"
)

var (
	reDisallowed = regexp.MustCompile(`[^\w\s€.,:\-/()%]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// Corrector repairs common OCR misreadings of receipt keywords and digits.
type Corrector struct {
	corrections []compiledCorrection
}

// NewCorrector builds a Corrector over the rules' substitution table.
func NewCorrector(rules *Rules) *Corrector {
	return &Corrector{corrections: rules.corrections}
}

// Correct applies the substitution table in order. Line structure is kept so
// the result can still be scanned line by line.
func (c *Corrector) Correct(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for _, corr := range c.corrections {
		next := corr.re.ReplaceAllString(s, corr.replace)
		// each repeat pass consumes at least one match, so this terminates
		for corr.repeat && next != s {
			s = next
			next = corr.re.ReplaceAllString(s, corr.replace)
		}
		s = next
	}
	return s
}

// Clean corrects raw text, drops characters outside the receipt allow-list and
// collapses whitespace. Clean(Clean(s)) == Clean(s).
func (c *Corrector) Clean(raw string) string {
	return normalize(c.Correct(raw))
}

func normalize(s string) string {
	s = reDisallowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
