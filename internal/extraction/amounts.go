package extraction

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// reAmount matches "<1-4 digits><sep><2 digits>". A currency symbol on either
// side is simply ignored.
var reAmount = regexp.MustCompile(`\d{1,4}[,.]\d{2}`)

var (
	minAmount    = decimal.RequireFromString("0.01")
	maxTotal     = decimal.NewFromInt(10000)
	maxItemPrice = decimal.NewFromInt(1000)
	maxVAT       = decimal.NewFromInt(1000)
)

// amountsInLine returns the monetary amounts of a line in reading order,
// discarding values outside (0.01, 10000).
func amountsInLine(line string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, loc := range reAmount.FindAllStringIndex(line, -1) {
		if partOfLongerNumber(line, loc[0], loc[1]) {
			continue
		}
		v, ok := parseAmount(line[loc[0]:loc[1]])
		if !ok || !between(v, minAmount, maxTotal) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// partOfLongerNumber reports whether s[start:end] is glued to more digits,
// as in "123456,78" or the "15.03" of "15.03.2024".
func partOfLongerNumber(s string, start, end int) bool {
	if start > 0 && isDigit(s[start-1]) {
		return true
	}
	if start > 1 && isSep(s[start-1]) && isDigit(s[start-2]) {
		return true
	}
	if end < len(s) && isDigit(s[end]) {
		return true
	}
	if end+1 < len(s) && isSep(s[end]) && isDigit(s[end+1]) {
		return true
	}
	return false
}

func parseAmount(s string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

// between reports lo < v < hi.
func between(v, lo, hi decimal.Decimal) bool {
	return v.GreaterThan(lo) && v.LessThan(hi)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isSep(b byte) bool   { return b == ',' || b == '.' }
