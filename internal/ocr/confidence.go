package ocr

import "strings"

// acceptTokens filters out empty tokens and those at or below the
// configured confidence threshold.
func acceptTokens(tokens []Token, threshold float64) []Token {
	var accepted []Token
	for _, tok := range tokens {
		if tok.Text == "" {
			continue
		}
		if tok.Confidence > threshold {
			accepted = append(accepted, tok)
		}
	}
	return accepted
}

// meanConfidence averages token confidences; 0 when nothing was accepted.
func meanConfidence(tokens []Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, tok := range tokens {
		sum += tok.Confidence
	}
	return sum / float64(len(tokens))
}

type lineKey struct {
	page, block, paragraph, line int
}

// groupLines aggregates word tokens into line boxes keyed by the
// (page, block, paragraph, line) tuple, in first-seen order. Bounds are
// the union of member boxes; confidence is the member mean; text joins
// members with single spaces in original order.
func groupLines(tokens []Token) []LineBox {
	index := make(map[lineKey]int)
	var lines []LineBox
	counts := make(map[lineKey]int)

	for _, tok := range tokens {
		key := lineKey{tok.Page, tok.Block, tok.Paragraph, tok.Line}
		i, seen := index[key]
		if !seen {
			index[key] = len(lines)
			lines = append(lines, LineBox{
				Text:       tok.Text,
				Confidence: tok.Confidence,
				X:          tok.X,
				Y:          tok.Y,
				Width:      tok.Width,
				Height:     tok.Height,
				Page:       tok.Page,
				Block:      tok.Block,
				Paragraph:  tok.Paragraph,
				Line:       tok.Line,
			})
			counts[key] = 1
			continue
		}

		lb := &lines[i]
		right := maxInt(lb.X+lb.Width, tok.X+tok.Width)
		bottom := maxInt(lb.Y+lb.Height, tok.Y+tok.Height)
		lb.X = minInt(lb.X, tok.X)
		lb.Y = minInt(lb.Y, tok.Y)
		lb.Width = right - lb.X
		lb.Height = bottom - lb.Y

		// running mean over member tokens
		n := counts[key]
		lb.Confidence = (lb.Confidence*float64(n) + tok.Confidence) / float64(n+1)
		counts[key] = n + 1

		lb.Text = strings.Join([]string{lb.Text, tok.Text}, " ")
	}
	return lines
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
