package extract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/billbox-app/invoice-ocr/constants"
)

const (
	minVendorLength = 3
	// headerLines is how many leading lines count as the document header
	// for the header-position boost.
	headerLines = 3
	// minAlphaRatio rejects captures that are mostly digits or punctuation.
	minAlphaRatio = 0.5
)

// extractVendor runs the ranked vendor table, cleans and validates each
// capture, and boosts candidates appearing in the document header.
func (e *Extractor) extractVendor(text string, result *Fields) {
	header := headerSpan(text)
	var cands []candidate

	for rank, p := range e.tables.vendors {
		base := rankConfidence(rank, e.cfg.VendorRankStep)
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if loc[2] < 0 {
				continue
			}
			raw := text[loc[2]:loc[3]]
			recordMatch(result, constants.FieldVendor, p.name, raw)

			name, ok := e.cleanVendor(raw)
			if !ok {
				continue
			}
			conf := base
			if loc[0] < header {
				conf += e.cfg.VendorHeaderBoost
				if conf > 1.0 {
					conf = 1.0
				}
			}
			cands = append(cands, candidate{
				vendor:     name,
				confidence: conf,
				raw:        raw,
			})
		}
	}

	if len(cands) == 0 {
		result.Notes = append(result.Notes, "No valid vendor found")
		return
	}

	best := selectBest(cands)
	result.Vendor = best.vendor
	result.ConfidenceScores[constants.FieldVendor] = best.confidence
	result.Notes = append(result.Notes,
		fmt.Sprintf("Selected vendor %q with confidence %.2f", best.vendor, best.confidence))
}

// headerSpan returns the byte offset where the document header ends.
func headerSpan(text string) int {
	offset := 0
	for i := 0; i < headerLines; i++ {
		idx := strings.IndexByte(text[offset:], '\n')
		if idx < 0 {
			return len(text)
		}
		offset += idx + 1
	}
	return offset
}

// cleanVendor normalizes a vendor capture (collapse whitespace, trim
// edge punctuation, title-case each word) and applies the acceptance
// rules: length bounds, mostly-alphabetic content, no exclusion-term
// substring, and no exact blacklist hit.
func (e *Extractor) cleanVendor(raw string) (string, bool) {
	name := strings.Join(strings.Fields(raw), " ")
	name = strings.Trim(name, ".,:;-")
	name = titleCase(strings.TrimSpace(name))

	if len(name) < minVendorLength || len(name) > e.cfg.MaxVendorLength {
		return "", false
	}
	if alphaRatio(name) < minAlphaRatio {
		return "", false
	}

	lower := strings.ToLower(name)
	for _, term := range e.cfg.ExcludeVendorWords {
		if strings.Contains(lower, term) {
			return "", false
		}
	}
	for _, word := range e.cfg.BlacklistVendorWords {
		if lower == word {
			return "", false
		}
	}
	return name, true
}

// titleCase uppercases the first letter of each space-separated word and
// lowercases the rest, so OCR shouting ("ACME CORPORATION") normalizes
// to a display name.
func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func alphaRatio(s string) float64 {
	if s == "" {
		return 0
	}
	alpha := 0
	total := 0
	for _, r := range s {
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	return float64(alpha) / float64(total)
}
