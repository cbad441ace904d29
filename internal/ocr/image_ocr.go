package ocr

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Recognizer is the external text-recognition collaborator: canonical
// grayscale buffer in, full text plus per-token records out.
type Recognizer interface {
	Recognize(ctx context.Context, img *image.Gray) (text string, tokens []Token, err error)
}

// tesseractRecognizer drives the tesseract binary through the Runner,
// once for the plain text and once in TSV mode for per-token confidence
// and position.
type tesseractRecognizer struct {
	cfg    Config
	runner Runner
}

func (t *tesseractRecognizer) Recognize(ctx context.Context, img *image.Gray) (string, []Token, error) {
	tmpDir, err := scratchDir(t.cfg.ScratchDir, "billbox-ocr-*")
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "page.png")
	if err := imaging.Save(img, in); err != nil {
		return "", nil, fmt.Errorf("write recognition input: %w", err)
	}

	// tesseract <file> stdout -l <lang> [--psm N] [--oem N]
	args := t.baseArgs(in)
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, args...)
	if err != nil {
		return "", nil, fmt.Errorf("tesseract: %w (stderr: %s)", err, truncate(string(errb), 512))
	}
	text := string(out)

	// Second pass in TSV mode for token boxes and confidences.
	tsvOut, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, append(args, "tsv")...)
	if err != nil {
		return "", nil, fmt.Errorf("tesseract tsv: %w (stderr: %s)", err, truncate(string(errb), 512))
	}
	tokens, err := parseTSV(tsvOut)
	if err != nil {
		return "", nil, err
	}
	return text, tokens, nil
}

func (t *tesseractRecognizer) baseArgs(input string) []string {
	args := []string{input, "stdout", "-l", t.cfg.Language}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return args
}

// TSV columns emitted by tesseract. Word-level rows carry level 5.
const (
	tsvColLevel = iota
	tsvColPage
	tsvColBlock
	tsvColPar
	tsvColLine
	tsvColWord
	tsvColLeft
	tsvColTop
	tsvColWidth
	tsvColHeight
	tsvColConf
	tsvColText
	tsvColCount
)

const tsvWordLevel = 5

// parseTSV converts tesseract TSV output into word tokens. Non-word rows
// and rows with the sentinel confidence -1 are skipped.
func parseTSV(data []byte) ([]Token, error) {
	lines := strings.Split(string(data), "\n")
	var tokens []Token
	for i, ln := range lines {
		if i == 0 || ln == "" { // skip header
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < tsvColCount {
			continue
		}
		if atoi(cols[tsvColLevel]) != tsvWordLevel {
			continue
		}
		confStr := cols[tsvColConf]
		if confStr == "" || confStr == "-1" {
			continue
		}
		conf, err := strconv.ParseFloat(confStr, 64)
		if err != nil {
			continue
		}
		tokens = append(tokens, Token{
			Text:       strings.TrimSpace(cols[tsvColText]),
			Confidence: conf,
			X:          atoi(cols[tsvColLeft]),
			Y:          atoi(cols[tsvColTop]),
			Width:      atoi(cols[tsvColWidth]),
			Height:     atoi(cols[tsvColHeight]),
			Page:       atoi(cols[tsvColPage]),
			Block:      atoi(cols[tsvColBlock]),
			Paragraph:  atoi(cols[tsvColPar]),
			Line:       atoi(cols[tsvColLine]),
			Word:       atoi(cols[tsvColWord]),
		})
	}
	return tokens, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// scratchDir creates a fresh per-run directory under parent, creating the
// parent itself when needed. An empty parent falls back to the os temp dir.
func scratchDir(parent, pattern string) (string, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", fmt.Errorf("create scratch dir: %w", err)
		}
	}
	return os.MkdirTemp(parent, pattern)
}
