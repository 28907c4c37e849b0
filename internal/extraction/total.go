package extraction

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Boosts earned by ExtractTotal depending on where the amount was found.
const (
	BoostTotalSameLine = 50
	BoostTotalNextLine = 40
	BoostTotalFallback = 20
)

// ExtractTotal looks for the amount paid. The last amount on a line carrying a
// total keyword wins; failing that, the first amount of the following line
// (two-line layouts); failing that, the largest amount anywhere.
func (e *Extractor) ExtractTotal(lines []string) (decimal.NullDecimal, int) {
	for i, line := range lines {
		if !e.rules.total.MatchString(line) {
			continue
		}
		if same := amountsInLine(line); len(same) > 0 {
			return decimal.NewNullDecimal(same[len(same)-1]), BoostTotalSameLine
		}
		if i+1 < len(lines) {
			if next := amountsInLine(lines[i+1]); len(next) > 0 {
				return decimal.NewNullDecimal(next[0]), BoostTotalNextLine
			}
		}
	}

	var all []decimal.Decimal
	for _, line := range lines {
		all = append(all, amountsInLine(line)...)
	}
	if len(all) == 0 {
		return decimal.NullDecimal{}, 0
	}
	largest := slices.MaxFunc(all, func(a, b decimal.Decimal) int { return a.Cmp(b) })
	return decimal.NewNullDecimal(largest), BoostTotalFallback
}
