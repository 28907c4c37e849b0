// Package extraction recovers structured receipt fields from noisy OCR text.
//
// Every extractor is an independent, pure function of its input text; the
// confidence score is the sum of the boosts each extractor earns.
package extraction

import (
	"github.com/shopspring/decimal"
)

// LineItem is one purchased product parsed from a receipt line.
type LineItem struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	// Quantity is zero when the line carried no multiplier.
	Quantity int `json:"quantity,omitempty"`
}

// Fields is the best-effort structured record recovered from one text.
type Fields struct {
	Total       decimal.NullDecimal `json:"total"`
	Date        *Date               `json:"date,omitempty"`
	Merchant    string              `json:"merchant,omitempty"`
	VAT         decimal.NullDecimal `json:"vat"`
	LineItems   []LineItem          `json:"line_items"`
	CleanedText string              `json:"cleaned_text"`
	// Confidence is the unclamped additive score, see Score.
	Confidence int `json:"confidence"`
}

// HasTotal reports whether a total amount was recovered.
func (f *Fields) HasTotal() bool {
	return f != nil && f.Total.Valid
}
