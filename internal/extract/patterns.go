package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// fieldPattern is one entry in a ranked pattern table. rank is the table
// position; the capture group with the value is always group 1.
type fieldPattern struct {
	name string
	re   *regexp.Regexp
}

type patternTables struct {
	amounts []fieldPattern
	dates   []fieldPattern
	vendors []fieldPattern
}

const (
	numericDate = `([0-9]{1,2}[/-][0-9]{1,2}[/-][0-9]{2,4})`
	wordedDate  = `([A-Za-z]{3,9}\.?\s+[0-9]{1,2},?\s+[0-9]{2,4}|[0-9]{1,2}\s+[A-Za-z]{3,9}\.?,?\s+[0-9]{2,4})`
	moneyValue  = `([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{1,2})?|[0-9]+\.[0-9]{1,2})`
	// moneyTail keeps a captured value from being the leading digits of a
	// date such as "due 02/15/2024".
	moneyTail = `(?:[^0-9/.\-]|$)`
)

// compileTables builds the three ranked tables from the config. Regexes
// are compiled once; NewExtractor panics on an invalid user-provided
// keyword only through regexp.MustCompile, and all interpolated strings
// are QuoteMeta'd first.
func compileTables(cfg Config) patternTables {
	return patternTables{
		amounts: amountPatterns(cfg),
		dates:   datePatterns(),
		vendors: vendorPatterns(cfg),
	}
}

func amountPatterns(cfg Config) []fieldPattern {
	symbols := quoteAlternation(cfg.CurrencySymbols)
	keywords := quoteAlternation(cfg.AmountKeywords)

	return []fieldPattern{
		{
			name: "symbol_prefix",
			re:   regexp.MustCompile(`(?i)(?:` + symbols + `)\s*` + moneyValue + moneyTail),
		},
		{
			name: "symbol_suffix",
			re:   regexp.MustCompile(`(?i)` + moneyValue + `\s*(?:` + symbols + `)`),
		},
		{
			name: "keyword_qualified",
			re:   regexp.MustCompile(`(?i)(?:` + keywords + `)\s*:?\s*(?:` + symbols + `)?\s*` + moneyValue + moneyTail),
		},
		{
			name: "standalone_decimal",
			re:   regexp.MustCompile(`\b([0-9]{1,3}(?:,[0-9]{3})*\.[0-9]{2})\b`),
		},
	}
}

func datePatterns() []fieldPattern {
	const dueKeywords = `(?:due\s+date|payment\s+due|date\s+due|due)`

	return []fieldPattern{
		{
			name: "keyword_numeric",
			re:   regexp.MustCompile(`(?i)` + dueKeywords + `\s*(?:by|on)?\s*:?\s*` + numericDate),
		},
		{
			name: "keyword_worded",
			re:   regexp.MustCompile(`(?i)` + dueKeywords + `\s*(?:by|on)?\s*:?\s*` + wordedDate),
		},
		{
			name: "standalone_numeric",
			re:   regexp.MustCompile(`\b` + numericDate + `\b`),
		},
		{
			name: "standalone_worded",
			re:   regexp.MustCompile(`(?i)\b` + wordedDate + `\b`),
		},
		{
			name: "iso",
			re:   regexp.MustCompile(`\b([0-9]{4}[/-][0-9]{1,2}[/-][0-9]{1,2})\b`),
		},
	}
}

func vendorPatterns(cfg Config) []fieldPattern {
	keywords := quoteAlternation(cfg.VendorKeywords)

	return []fieldPattern{
		{
			name: "keyword_qualified",
			re:   regexp.MustCompile(`(?i)(?:` + keywords + `)\s*:?\s*([A-Za-z0-9][A-Za-z0-9 &.,\-']{1,99}?)(?:\n|$|\s{3,}|[0-9]{3,})`),
		},
		{
			name: "line_start",
			re:   regexp.MustCompile(`(?m)^([A-Z][A-Za-z0-9 &.,\-']{2,50})\s*$`),
		},
		{
			name: "legal_suffix",
			re:   regexp.MustCompile(`(?i)\b([A-Za-z0-9][A-Za-z0-9 &.\-']{1,80}\s+(?:Inc|LLC|Ltd|Corp|Corporation|Company|Services|Solutions)\.?)\b`),
		},
	}
}

// quoteAlternation joins literals into a regex alternation, escaping
// metacharacters. Entries are sorted longest-first because alternation
// matching is leftmost-first, so e.g. "grand total" must precede "total"
// inside the same group.
func quoteAlternation(words []string) string {
	sorted := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		sorted = append(sorted, w)
	}
	if len(sorted) == 0 {
		return `\b\B` // matches nothing
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// recordMatch appends a raw match string for a field, attempted and
// accepted alike, so callers can audit why a value was or was not chosen.
func recordMatch(result *Fields, field, pattern, raw string) {
	result.RawMatches[field] = append(result.RawMatches[field],
		fmt.Sprintf("%s: %s", pattern, strings.TrimSpace(raw)))
}
