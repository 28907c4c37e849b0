package extraction

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// "NAME   4,99" with at least two spaces before the price
	reItemLine = regexp.MustCompile(`^(.+?)\s{2,}(\d{1,4}[,.]\d{2})\s*€?\s*$`)
	// "2x NAME", "2 x NAME", "2xNAME", "x2 NAME"
	reQtyPrefix = regexp.MustCompile(`^(?:(\d{1,3})(?:\s*[xX×]\s+|[xX×])|[xX×]\s*(\d{1,3})\s+)(.+)$`)
	// "NAME 2x", "NAME x2"
	reQtySuffix = regexp.MustCompile(`^(.+?)\s+(?:(\d{1,3})\s*[xX×]|[xX×]\s*(\d{1,3}))$`)
)

// ExtractLineItems parses "name  price" lines, skipping totals, VAT,
// discounts, deposits and loyalty lines.
func (e *Extractor) ExtractLineItems(text string) []LineItem {
	var items []LineItem
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if len(line) < 3 {
			continue
		}
		if e.rules.skipItem != nil && e.rules.skipItem.MatchString(line) {
			continue
		}

		m := reItemLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := reSpaces.ReplaceAllString(strings.TrimSpace(m[1]), " ")
		price, ok := parseAmount(m[2])
		if !ok || len([]rune(name)) < 2 || !between(price, minAmount, maxItemPrice) {
			continue
		}

		item := LineItem{Name: name, Price: price}
		if q := reQtyPrefix.FindStringSubmatch(name); q != nil {
			item.Name, item.Quantity = strings.TrimSpace(q[3]), quantity(q[1], q[2])
		} else if q := reQtySuffix.FindStringSubmatch(name); q != nil {
			item.Name, item.Quantity = strings.TrimSpace(q[1]), quantity(q[2], q[3])
		}
		items = append(items, item)
	}
	return items
}

// quantity returns whichever of the alternative captures matched.
func quantity(a, b string) int {
	s := a
	if s == "" {
		s = b
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0
	}
	return n
}
