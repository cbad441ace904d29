package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/billbox-app/invoice-ocr/constants"
)

// extractDueDate runs the ranked date table, parses each capture against
// the configured layouts, and applies the validity window relative to the
// extractor's clock. The keyword boost is a document-level signal: it
// applies to every candidate when "due" or "payment" appears anywhere in
// the text.
func (e *Extractor) extractDueDate(text string, result *Fields) {
	var cands []candidate

	lower := strings.ToLower(text)
	boost := 0.0
	if strings.Contains(lower, "due") || strings.Contains(lower, "payment") {
		boost = e.cfg.DateKeywordBoost
	}

	for rank, p := range e.tables.dates {
		conf := rankConfidence(rank, e.cfg.DateRankStep) + boost
		if conf > 1.0 {
			conf = 1.0
		}
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			raw := m[1]
			recordMatch(result, constants.FieldDueDate, p.name, m[0])

			parsed, ok := e.parseDate(raw)
			if !ok {
				continue
			}
			cands = append(cands, candidate{
				date:       parsed,
				confidence: conf,
				raw:        raw,
			})
		}
	}

	if len(cands) == 0 {
		result.Notes = append(result.Notes, "No valid due date found")
		return
	}

	best := selectBest(cands)
	dt := best.date
	result.DueDate = &dt
	result.ConfidenceScores[constants.FieldDueDate] = best.confidence
	result.Notes = append(result.Notes,
		fmt.Sprintf("Selected due date %s with confidence %.2f", dt.Format("2006-01-02"), best.confidence))
}

// parseDate tries each configured layout in order and checks the result
// against the plausibility window. Layout order matters for ambiguous
// numeric dates: the first layout that parses wins.
func (e *Extractor) parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range e.cfg.DateLayouts {
		parsed, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if e.withinWindow(parsed) {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func (e *Extractor) withinWindow(t time.Time) bool {
	now := e.now()
	earliest := now.AddDate(0, 0, -e.cfg.MaxDaysPast)
	latest := now.AddDate(0, 0, e.cfg.MaxDaysFuture)
	return !t.Before(earliest) && !t.After(latest)
}
