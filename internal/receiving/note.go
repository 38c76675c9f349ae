// Package receiving turns free-text supplier delivery notes into stock
// purchase lines matched against the ingredient catalog.
package receiving

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/comanda-pos/api/internal/units"
	"github.com/shopspring/decimal"
)

// ErrEmptyNote is returned when a note holds no line with a price.
var ErrEmptyNote = errors.New("no priced lines found in note")

// Note is a parsed delivery note.
type Note struct {
	Date     *time.Time `json:"date,omitempty"`
	Lines    []Line     `json:"lines"`
	Warnings []string   `json:"warnings"`
}

// Line is one delivered item. Total is the line amount, not the unit price.
type Line struct {
	Raw         string          `json:"raw"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	UOM         string          `json:"uom"`
	Total       decimal.Decimal `json:"total"`
}

// UnitCost is the price of one UOM of the line, rounded to four places.
func (l Line) UnitCost() decimal.Decimal {
	if l.Qty.IsZero() {
		return decimal.Zero
	}
	return l.Total.DivRound(l.Qty, 4)
}

var (
	dateLine  = regexp.MustCompile(`^(?:fecha:?\s*)?(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2}|\d{4}))?$`)
	thousands = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	thousandK = decimal.NewFromInt(1000)
)

// ParseNote parses a delivery note. An optional first line holds the date
// as dd/mm or dd/mm/yyyy; every other line is an item such as
// "tomate perita 5 kg $4.500". Lines without a price are reported as
// warnings. now resolves dates without a year.
func ParseNote(text string, now time.Time) (*Note, error) {
	note := &Note{Warnings: []string{}}
	first := true

	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if first {
			first = false
			if d, ok := parseDateLine(raw, now); ok {
				note.Date = &d
				continue
			}
		}

		line, err := parseItemLine(raw)
		if err != nil {
			note.Warnings = append(note.Warnings, fmt.Sprintf("skipped %q: %v", raw, err))
			continue
		}
		note.Lines = append(note.Lines, line)
	}

	if len(note.Lines) == 0 {
		return nil, ErrEmptyNote
	}
	return note, nil
}

// parseDateLine reads "20/10", "20-10-26" or "fecha 20/10/2026". A date
// without a year more than 30 days ahead of now belongs to last year.
func parseDateLine(line string, now time.Time) (time.Time, bool) {
	m := dateLine.FindStringSubmatch(strings.ToLower(line))
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, false
	}

	year := now.Year()
	explicit := m[3] != ""
	if explicit {
		year, _ = strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		// 31/04 and friends roll over into the next month
		return time.Time{}, false
	}
	if !explicit && d.After(now.AddDate(0, 0, 30)) {
		d = d.AddDate(-1, 0, 0)
	}
	return d, true
}

func parseItemLine(raw string) (Line, error) {
	tokens := strings.Fields(strings.ToLower(raw))
	line := Line{Raw: raw, Qty: decimal.NewFromInt(1)}

	var desc []string
	var priceFound, qtyFound bool
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !priceFound {
			if p, ok := parsePrice(tok); ok {
				line.Total, priceFound = p, true
				continue
			}
		}
		if !qtyFound {
			if q, u, ok := parseQtyUnit(tok); ok {
				line.Qty, line.UOM, qtyFound = q, u, true
				continue
			}
			// "5 kg"
			if i+1 < len(tokens) && units.Known(tokens[i+1]) {
				if q, err := units.ParseLocaleNumber(tok); err == nil {
					line.Qty, line.UOM, qtyFound = q, tokens[i+1], true
					i++
					continue
				}
			}
		}
		if !hasAlnum(tok) {
			continue
		}
		desc = append(desc, tok)
	}

	// Without a marked price the last bare number is the amount.
	if !priceFound {
		for j := len(desc) - 1; j >= 0; j-- {
			if p, ok := parseAmount(desc[j]); ok {
				line.Total, priceFound = p, true
				desc = append(desc[:j], desc[j+1:]...)
				break
			}
		}
	}

	switch {
	case !priceFound:
		return Line{}, errors.New("no price")
	case line.Total.IsNegative():
		return Line{}, errors.New("negative price")
	case !line.Qty.IsPositive():
		return Line{}, errors.New("quantity must be positive")
	case len(desc) == 0:
		return Line{}, errors.New("no description")
	}
	line.Description = strings.Join(desc, " ")
	return line, nil
}

// parsePrice reads the marked price forms: "$4.500", "$12,50" and "12k".
func parsePrice(tok string) (decimal.Decimal, bool) {
	if rest, ok := strings.CutPrefix(tok, "$"); ok {
		return parseAmount(rest)
	}
	if num, ok := strings.CutSuffix(tok, "k"); ok && num != "" {
		if v, ok := parseAmount(num); ok {
			return v.Mul(thousandK), true
		}
	}
	return decimal.Zero, false
}

// parseAmount reads a money amount. A dot followed by groups of three
// digits is a thousands separator when no comma is present.
func parseAmount(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	if thousands.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	v, err := units.ParseLocaleNumber(s)
	if err != nil || strings.ContainsAny(s, "eE") {
		return decimal.Zero, false
	}
	return v, true
}

// parseQtyUnit reads "5kg", "2,5l" or "30u". The unit must be known.
func parseQtyUnit(tok string) (decimal.Decimal, string, bool) {
	end := strings.IndexFunc(tok, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != ','
	})
	if end <= 0 {
		return decimal.Zero, "", false
	}
	unit := tok[end:]
	if !units.Known(unit) {
		return decimal.Zero, "", false
	}
	q, err := units.ParseLocaleNumber(tok[:end])
	if err != nil {
		return decimal.Zero, "", false
	}
	return q, unit, true
}

func hasAlnum(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
