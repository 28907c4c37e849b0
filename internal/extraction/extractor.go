package extraction

import (
	"log/slog"
	"strings"
)

// Extractor runs every field heuristic over one recognized text.
type Extractor struct {
	rules     *Rules
	corrector *Corrector
	logger    *slog.Logger
}

// NewExtractor creates an Extractor. A nil rules value selects DefaultRules.
func NewExtractor(rules *Rules, logger *slog.Logger) *Extractor {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		rules:     rules,
		corrector: NewCorrector(rules),
		logger:    logger,
	}
}

// Corrector returns the text corrector built from the extractor's rules.
func (e *Extractor) Corrector() *Corrector {
	return e.corrector
}

// Extract corrects raw text, runs every extractor and scores the result.
func (e *Extractor) Extract(raw string) *Fields {
	corrected := e.corrector.Correct(raw)

	total, totalBoost := e.ExtractTotal(splitLines(corrected))
	fields := &Fields{
		Total:       total,
		Merchant:    e.ExtractMerchant(corrected),
		VAT:         e.ExtractVAT(corrected),
		LineItems:   e.ExtractLineItems(corrected),
		CleanedText: normalize(corrected),
	}
	if d, ok := e.ExtractDate(corrected); ok {
		fields.Date = &d
	}

	fields.Confidence = Score(fields, Signals{
		TotalBoost:     totalBoost,
		RawLength:      len([]rune(raw)),
		KeywordPresent: e.rules.scoreKeyword.MatchString(corrected),
	})

	e.logger.Debug("extracted receipt fields",
		"total", fields.Total,
		"date", fields.Date,
		"merchant", fields.Merchant,
		"vat", fields.VAT,
		"line_items", len(fields.LineItems),
		"score", fields.Confidence,
	)
	return fields
}

// splitLines returns the trimmed, non-empty lines of s.
func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
