package price

import (
	"regexp"
	"strconv"
	"strings"
)

// Currency is an ISO-4217 code for the currencies OLX listings use.
type Currency string

const (
	PLN Currency = "PLN"
	EUR Currency = "EUR"
	USD Currency = "USD"
)

// CurrencyFromCode maps a raw currency code ("PLN") to a Currency,
// returning nil for codes outside the supported set.
func CurrencyFromCode(code string) *Currency {
	switch Currency(code) {
	case PLN, EUR, USD:
		c := Currency(code)
		return &c
	}
	return nil
}

var currencyTokens = map[string]Currency{
	"zł":  PLN,
	"pln": PLN,
	"eur": EUR,
	"€":   EUR,
	"usd": USD,
	"$":   USD,
}

var (
	currencyPattern = regexp.MustCompile(`(?i)(?:zł|pln|eur|€|usd|\$)`)
	numberPattern   = regexp.MustCompile(`\d[\d\s\x{00A0},.]*\d|\d`)
)

// ParsedPrice is the structured form of a free-text price string.
// It is stored as JSONB on offer sources, so the field names are part
// of the persisted format.
type ParsedPrice struct {
	Raw      string    `json:"raw"`
	Amount   *float64  `json:"amount"`
	Currency *Currency `json:"currency"`
	Notes    *string   `json:"notes"`
}

// MatchCurrency finds the first currency token in s, or nil.
func MatchCurrency(s string) *Currency {
	match := currencyPattern.FindString(s)
	if match == "" {
		return nil
	}
	c := currencyTokens[strings.ToLower(match)]
	return &c
}

// Parse extracts amount, currency, and leftover notes from a free-text
// price string such as "3 100,50 zł/mies". It never fails: anything it
// cannot interpret degrades to nil fields, with the unconsumed text
// kept in Notes.
func Parse(raw string) ParsedPrice {
	text := strings.TrimSpace(raw)
	remaining := text

	var amount *float64
	if loc := numberPattern.FindStringIndex(remaining); loc != nil {
		num := remaining[loc[0]:loc[1]]
		num = strings.ReplaceAll(num, " ", "")
		num = strings.ReplaceAll(num, " ", "")
		num = normalizeSeparators(num)
		if v, err := strconv.ParseFloat(num, 64); err == nil {
			amount = &v
		}
		remaining = remaining[:loc[0]] + remaining[loc[1]:]
	}

	var currency *Currency
	if loc := currencyPattern.FindStringIndex(remaining); loc != nil {
		c := currencyTokens[strings.ToLower(remaining[loc[0]:loc[1]])]
		currency = &c
		remaining = remaining[:loc[0]] + remaining[loc[1]:]
	}

	var notes *string
	trimmed := strings.TrimSpace(remaining)
	trimmed = strings.Trim(trimmed, "/\\-–—,;:.")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed != "" {
		notes = &trimmed
	}

	return ParsedPrice{
		Raw:      text,
		Amount:   amount,
		Currency: currency,
		Notes:    notes,
	}
}

// normalizeSeparators resolves the comma's double duty in listing
// prices: "3,100.50" and "3,100" use it as a thousands separator,
// "3100,50" as a decimal one.
func normalizeSeparators(num string) string {
	hasComma := strings.Contains(num, ",")
	hasPeriod := strings.Contains(num, ".")

	switch {
	case hasComma && hasPeriod:
		return strings.ReplaceAll(num, ",", "")
	case hasComma:
		parts := strings.Split(num, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			return strings.Replace(num, ",", ".", 1)
		}
		return strings.ReplaceAll(num, ",", "")
	default:
		return num
	}
}
