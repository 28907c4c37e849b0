package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	reDateLong  = regexp.MustCompile(`(\d{2})[/\-.](\d{2})[/\-.](\d{4})`)
	reDateShort = regexp.MustCompile(`(\d{2})[/\-.](\d{2})[/\-.](\d{2})`)
)

// century prefixed to two-digit years.
const century = 2000

// Date is a calendar date without time of day, formatted DD/MM/YYYY.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate validates y/m/d as a real calendar date.
func NewDate(year int, month time.Month, day int) (Date, bool) {
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return Date{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return Date{}, false
	}
	return Date{Year: year, Month: month, Day: day}, true
}

func (d Date) String() string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// Time returns midnight UTC on d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	t, err := time.Parse("02/01/2006", string(b))
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", string(b), err)
	}
	*d = Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
	return nil
}

// ExtractDate finds the first valid DD/MM/YYYY (or DD/MM/YY) date; separators
// may be '/', '-' or '.'. Impossible dates such as 31/02/2024 are skipped.
func (e *Extractor) ExtractDate(text string) (Date, bool) {
	for _, re := range []*regexp.Regexp{reDateLong, reDateShort} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if m[0] > 0 && isDigit(text[m[0]-1]) {
				continue
			}
			if m[1] < len(text) && isDigit(text[m[1]]) {
				continue
			}
			day, _ := strconv.Atoi(text[m[2]:m[3]])
			month, _ := strconv.Atoi(text[m[4]:m[5]])
			year, _ := strconv.Atoi(text[m[6]:m[7]])
			if m[7]-m[6] == 2 {
				year += century
			}
			if d, ok := NewDate(year, time.Month(month), day); ok {
				return d, true
			}
		}
	}
	return Date{}, false
}
