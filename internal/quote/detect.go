// Package quote enriches conversations with BRL currency quotes: real-time
// rates from AwesomeAPI and official historical PTAX rates from the Banco
// Central do Brasil.
package quote

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds diacritics and lowercases, so "cotação do dólar" matches
// the same keywords as "cotacao do dolar". Non-ASCII runes that survive
// decomposition are dropped.
func Normalize(text string) string {
	decomposed := norm.NFD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) || r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

var currencyKeywords = map[string]string{
	"dolar":   "USD",
	"usd":     "USD",
	"euro":    "EUR",
	"eur":     "EUR",
	"libra":   "GBP",
	"gbp":     "GBP",
	"iene":    "JPY",
	"jpy":     "JPY",
	"peso":    "ARS",
	"ars":     "ARS",
	"bitcoin": "BTC",
	"btc":     "BTC",
}

// DetectCurrencyCodes scans normalized text for currency mentions. A generic
// "cotacao" or "cambio" without a specific currency implies USD and EUR.
// Results are sorted for stable output.
func DetectCurrencyCodes(normalized string) []string {
	detected := make(map[string]struct{})
	for keyword, code := range currencyKeywords {
		if strings.Contains(normalized, keyword) {
			detected[code] = struct{}{}
		}
	}
	if strings.Contains(normalized, "cotacao") || strings.Contains(normalized, "cambio") {
		detected["USD"] = struct{}{}
		detected["EUR"] = struct{}{}
	}

	codes := make([]string, 0, len(detected))
	for code := range detected {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

var (
	dayFirstDate  = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{2,4})\b`)
	yearFirstDate = regexp.MustCompile(`\b(\d{4})[/.-](\d{1,2})[/.-](\d{1,2})\b`)
	writtenDate   = regexp.MustCompile(`\b(\d{1,2})\s+de\s+(janeiro|fevereiro|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\s+de\s+(\d{4})`)
)

var monthNames = map[string]time.Month{
	"janeiro":   time.January,
	"fevereiro": time.February,
	"marco":     time.March,
	"abril":     time.April,
	"maio":      time.May,
	"junho":     time.June,
	"julho":     time.July,
	"agosto":    time.August,
	"setembro":  time.September,
	"outubro":   time.October,
	"novembro":  time.November,
	"dezembro":  time.December,
}

// normalizeYear widens two-digit years: 24 means 2024, 75 means 1975.
func normalizeYear(value int) int {
	if value < 100 {
		if value < 50 {
			return 2000 + value
		}
		return 1900 + value
	}
	return value
}

func buildDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	candidate := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	// time.Date normalizes overflow (Feb 30 becomes Mar 2); reject that.
	if candidate.Day() != day || candidate.Month() != time.Month(month) || candidate.Year() != year {
		return time.Time{}, false
	}
	return candidate, true
}

// DetectReferenceDate finds an explicit or relative date in normalized text:
// "ontem"/"anteontem", dd/mm/yyyy (also with dots or dashes), yyyy-mm-dd,
// and "3 de junho de 2024". Returns false when no date is mentioned.
func DetectReferenceDate(normalized string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	// "anteontem" must win over its substring "ontem".
	if strings.Contains(normalized, "anteontem") {
		return today.AddDate(0, 0, -2), true
	}
	if strings.Contains(normalized, "ontem") {
		return today.AddDate(0, 0, -1), true
	}

	if m := dayFirstDate.FindStringSubmatch(normalized); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if candidate, ok := buildDate(normalizeYear(year), month, day); ok {
			return candidate, true
		}
	}

	if m := yearFirstDate.FindStringSubmatch(normalized); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if candidate, ok := buildDate(year, month, day); ok {
			return candidate, true
		}
	}

	if m := writtenDate.FindStringSubmatch(normalized); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		if candidate, ok := buildDate(year, int(monthNames[m[2]]), day); ok {
			return candidate, true
		}
	}

	return time.Time{}, false
}
