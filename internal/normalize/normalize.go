// Package normalize turns the free-text price, area and location strings
// shown on listing cards into typed values.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	numberRe   = regexp.MustCompile(`\d[\d.,]*`)
	thousandRe = regexp.MustCompile(`\bbin\b`)
	currencyRe = regexp.MustCompile(`(?i)(₺|\$|€|\busd\b|\beur\b|\btl\b)`)
	areaUnitRe = regexp.MustCompile(`(?i)(m²|m2|metrekare)`)
)

// Lower lowercases with Turkish casing rules (İ -> i, I -> ı)
func Lower(s string) string {
	return cases.Lower(language.Turkish).String(s)
}

// ParsePrice parses a displayed price such as "1.250.000 TL" or
// "2,5 milyon ₺". It reports false when no number is present.
func ParsePrice(text string) (float64, bool) {
	s := Lower(strings.TrimSpace(text))
	if s == "" {
		return 0, false
	}

	multiplier := 1.0
	switch {
	case strings.Contains(s, "milyon"):
		multiplier = 1e6
	case thousandRe.MatchString(s):
		multiplier = 1e3
	}

	s = currencyRe.ReplaceAllString(s, " ")
	v, ok := parseNumber(s)
	if !ok {
		return 0, false
	}
	return v * multiplier, true
}

// ParseArea parses an area such as "120 m²" or "1.250 m2"
func ParseArea(text string) (float64, bool) {
	s := areaUnitRe.ReplaceAllString(strings.TrimSpace(text), " ")
	return parseNumber(s)
}

func parseNumber(s string) (float64, bool) {
	token := numberRe.FindString(s)
	token = strings.TrimRight(token, ".,")
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(stripThousands(token), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// stripThousands drops every period or comma that is followed by exactly
// three digits, then turns a remaining comma into the decimal point.
func stripThousands(token string) string {
	var b strings.Builder
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c != '.' && c != ',' {
			b.WriteByte(c)
			continue
		}
		if groupFollows(token, i+1) {
			continue
		}
		b.WriteByte('.')
	}
	return b.String()
}

func groupFollows(s string, at int) bool {
	if at+3 > len(s) {
		return false
	}
	for j := at; j < at+3; j++ {
		if s[j] < '0' || s[j] > '9' {
			return false
		}
	}
	return at+3 == len(s) || s[at+3] < '0' || s[at+3] > '9'
}

// FormatPrice renders a price the way the portals do: period thousands
// separators, comma decimals (at most two) and a TL suffix.
func FormatPrice(v float64) string {
	cents := int64(math.Round(v * 100))
	whole, frac := cents/100, cents%100

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if frac != 0 {
		f := strconv.FormatInt(frac+100, 10)[1:]
		b.WriteByte(',')
		b.WriteString(strings.TrimRight(f, "0"))
	}
	b.WriteString(" TL")
	return b.String()
}

// SplitLocation splits "İstanbul / Kadıköy / Moda" style strings. Missing
// parts come back empty.
func SplitLocation(text string) (province, district, neighborhood string) {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '/' || r == ',' || r == '|'
	})
	var clean []string
	for _, p := range parts {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			clean = append(clean, p)
		}
	}
	for len(clean) < 3 {
		clean = append(clean, "")
	}
	return clean[0], clean[1], clean[2]
}
