package extraction

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

//go:embed rules.json
var defaultRulesJSON []byte

// Correction is one entry in the ordered OCR substitution table.
type Correction struct {
	Pattern string `json:"pattern"`
	Replace string `json:"replace"`
	// Repeat re-applies the substitution until the text stops changing.
	// Needed for patterns whose matches overlap, e.g. "1O1O1".
	Repeat bool `json:"repeat,omitempty"`
}

// RuleSet is the on-disk form of the extraction configuration.
type RuleSet struct {
	Merchants        []string     `json:"merchants"`
	TotalKeywords    []string     `json:"total_keywords"`
	VATKeywords      []string     `json:"vat_keywords"`
	ItemSkipKeywords []string     `json:"item_skip_keywords"`
	ScoreKeyword     string       `json:"score_keyword"`
	Corrections      []Correction `json:"corrections"`
}

type merchantPattern struct {
	name string
	re   *regexp.Regexp
}

type compiledCorrection struct {
	re      *regexp.Regexp
	replace string
	repeat  bool
}

// Rules is a compiled, read-only RuleSet. It is safe for concurrent use.
type Rules struct {
	merchants    []merchantPattern
	total        *regexp.Regexp
	vat          []*regexp.Regexp
	skipItem     *regexp.Regexp
	scoreKeyword *regexp.Regexp
	corrections  []compiledCorrection
}

// DefaultRules returns the rules embedded in the binary.
func DefaultRules() *Rules {
	rules, err := ParseRules(defaultRulesJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded rules: %v", err))
	}
	return rules
}

// LoadRules reads and compiles a JSON rules file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes and compiles a JSON rules document.
func ParseRules(data []byte) (*Rules, error) {
	var set RuleSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("unmarshaling rules: %w", err)
	}
	return set.Compile()
}

// Compile validates every pattern and builds the matchers.
func (s RuleSet) Compile() (*Rules, error) {
	if len(s.TotalKeywords) == 0 {
		return nil, fmt.Errorf("at least one total keyword is required")
	}
	if len(s.VATKeywords) == 0 {
		return nil, fmt.Errorf("at least one vat keyword is required")
	}

	r := &Rules{}
	var err error

	if r.total, err = alternation(s.TotalKeywords); err != nil {
		return nil, fmt.Errorf("total keywords: %w", err)
	}
	if len(s.ItemSkipKeywords) > 0 {
		if r.skipItem, err = alternation(s.ItemSkipKeywords); err != nil {
			return nil, fmt.Errorf("item skip keywords: %w", err)
		}
	}

	vat := "(?:" + strings.Join(s.VATKeywords, "|") + ")"
	for _, expr := range []string{
		// "TVA 20% 2,50", "TVA 5,5 % : 0,52"
		`(?i)\b` + vat + `\s+\d+(?:[,.]\d+)?\s*%?\s*[:\s]\s*(\d+[,.]\d{2})`,
		// "TVA : 2,50"
		`(?i)\b` + vat + `\s*[:\s]\s*(\d+[,.]\d{2})`,
	} {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("vat keywords: %w", err)
		}
		r.vat = append(r.vat, re)
	}

	keyword := s.ScoreKeyword
	if keyword == "" {
		keyword = "total"
	}
	if r.scoreKeyword, err = regexp.Compile("(?i)" + keyword); err != nil {
		return nil, fmt.Errorf("score keyword: %w", err)
	}

	for _, name := range s.Merchants {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(name) + `(?:[^\p{L}\p{N}]|$)`)
		if err != nil {
			return nil, fmt.Errorf("merchant %q: %w", name, err)
		}
		r.merchants = append(r.merchants, merchantPattern{name: name, re: re})
	}

	for i, c := range s.Corrections {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("correction %d (%q): %w", i, c.Pattern, err)
		}
		r.corrections = append(r.corrections, compiledCorrection{re: re, replace: c.Replace, repeat: c.Repeat})
	}

	return r, nil
}

func alternation(keywords []string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)(?:" + strings.Join(keywords, "|") + ")")
}
