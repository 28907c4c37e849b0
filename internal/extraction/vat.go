package extraction

import (
	"github.com/shopspring/decimal"
)

// ExtractVAT finds a VAT keyword, an optional rate and then the VAT amount.
// Amounts outside (0, 1000) are ignored.
func (e *Extractor) ExtractVAT(text string) decimal.NullDecimal {
	for _, re := range e.rules.vat {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, ok := parseAmount(m[1])
		if ok && between(v, decimal.Zero, maxVAT) {
			return decimal.NewNullDecimal(v)
		}
	}
	return decimal.NullDecimal{}
}
