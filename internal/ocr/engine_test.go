package ocr

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	text   string
	tokens []Token
	err    error
	calls  int
}

func (s *stubRecognizer) Recognize(_ context.Context, _ *image.Gray) (string, []Token, error) {
	s.calls++
	return s.text, s.tokens, s.err
}

func testEngine(rec Recognizer) *Engine {
	return NewEngine(DefaultConfig(), nil, nil).WithRecognizer(rec)
}

func invoiceImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	for i := range img.Pix {
		img.Pix[i] = 240
	}
	return img
}

func TestExtractTextAssemblesResult(t *testing.T) {
	rec := &stubRecognizer{
		text: "TOTAL $42.00\n",
		tokens: []Token{
			{Text: "TOTAL", Confidence: 90, X: 10, Y: 5, Width: 50, Height: 12, Page: 1, Block: 1, Paragraph: 1, Line: 1, Word: 1},
			{Text: "$42.00", Confidence: 80, X: 70, Y: 4, Width: 60, Height: 14, Page: 1, Block: 1, Paragraph: 1, Line: 1, Word: 2},
		},
	}
	res := testEngine(rec).ExtractText(context.Background(), invoiceImage())

	require.True(t, res.Success)
	assert.Equal(t, "TOTAL $42.00", res.Text)
	assert.InDelta(t, 85.0, res.Confidence, 1e-9)
	assert.Len(t, res.WordBoxes, 2)
	require.Len(t, res.LineBoxes, 1)
	assert.Equal(t, "TOTAL $42.00", res.LineBoxes[0].Text)
	assert.Equal(t, "primary", res.PreprocessingStats["method"])
	assert.Empty(t, res.ErrorMessage)
}

func TestExtractTextMalformedImage(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
	}{
		{name: "nil", img: nil},
		{name: "empty", img: image.NewGray(image.Rect(0, 0, 0, 0))},
		{name: "one dimensional", img: image.NewGray(image.Rect(0, 0, 50, 0))},
	}
	rec := &stubRecognizer{}
	eng := testEngine(rec)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := eng.ExtractText(context.Background(), tt.img)
			assert.False(t, res.Success)
			assert.Empty(t, res.Text)
			assert.Zero(t, res.Confidence)
			assert.NotEmpty(t, res.ErrorMessage)
		})
	}
	assert.Zero(t, rec.calls, "recognizer must not run on invalid input")
}

func TestExtractTextRecognitionFailureStaysStructured(t *testing.T) {
	rec := &stubRecognizer{err: errors.New("engine exploded")}
	res := testEngine(rec).ExtractText(context.Background(), invoiceImage())

	assert.False(t, res.Success)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.ErrorMessage, "engine exploded")
	// preprocessing ran before the failure, so provenance survives
	assert.Equal(t, "primary", res.PreprocessingStats["method"])
}

func TestExtractTextConfidenceZeroWithoutTokens(t *testing.T) {
	rec := &stubRecognizer{text: ""}
	res := testEngine(rec).ExtractText(context.Background(), invoiceImage())

	require.True(t, res.Success)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.WordBoxes)
	assert.Empty(t, res.LineBoxes)
}

func TestExtractTextFiltersThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 50
	rec := &stubRecognizer{
		text: "keep drop",
		tokens: []Token{
			{Text: "keep", Confidence: 80, Page: 1, Block: 1, Paragraph: 1, Line: 1},
			{Text: "drop", Confidence: 30, Page: 1, Block: 1, Paragraph: 1, Line: 1},
			{Text: "", Confidence: 99, Page: 1, Block: 1, Paragraph: 1, Line: 1},
		},
	}
	eng := NewEngine(cfg, nil, nil).WithRecognizer(rec)
	res := eng.ExtractText(context.Background(), invoiceImage())

	require.True(t, res.Success)
	require.Len(t, res.WordBoxes, 1)
	assert.Equal(t, "keep", res.WordBoxes[0].Text)
	assert.InDelta(t, 80.0, res.Confidence, 1e-9)
}

func TestProcessImageFileErrors(t *testing.T) {
	eng := testEngine(&stubRecognizer{})

	res := eng.ProcessImageFile(context.Background(), "/nonexistent/invoice.png")
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "not found")

	res = eng.ProcessImageFile(context.Background(), filepath.Join(t.TempDir(), "invoice.docx"))
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "unsupported file format")
}

func TestBatchProcessIsolatesFailures(t *testing.T) {
	eng := testEngine(&stubRecognizer{text: "ok"})
	paths := []string{
		"/nope/a.png",
		"/nope/b.png",
		"/nope/c.png",
	}
	results := eng.BatchProcess(context.Background(), paths)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.ErrorMessage)
	}
}

func TestGroupLines(t *testing.T) {
	tokens := []Token{
		{Text: "ACME", Confidence: 90, X: 10, Y: 10, Width: 40, Height: 12, Page: 1, Block: 1, Paragraph: 1, Line: 1, Word: 1},
		{Text: "CORP", Confidence: 70, X: 55, Y: 8, Width: 42, Height: 16, Page: 1, Block: 1, Paragraph: 1, Line: 1, Word: 2},
		{Text: "Invoice", Confidence: 60, X: 10, Y: 40, Width: 60, Height: 12, Page: 1, Block: 1, Paragraph: 1, Line: 2, Word: 1},
	}
	lines := groupLines(tokens)
	require.Len(t, lines, 2)

	first := lines[0]
	assert.Equal(t, "ACME CORP", first.Text)
	assert.InDelta(t, 80.0, first.Confidence, 1e-9)
	assert.Equal(t, 10, first.X)
	assert.Equal(t, 8, first.Y)
	assert.Equal(t, 87, first.Width)  // union right edge 97 - left 10
	assert.Equal(t, 16, first.Height) // union bottom 24 - top 8

	second := lines[1]
	assert.Equal(t, "Invoice", second.Text)
	assert.Equal(t, 2, second.Line)
}

func TestParseTSV(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t640\t480\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t10\t5\t50\t12\t91.5\tTOTAL\n" +
		"5\t1\t1\t1\t1\t2\t70\t4\t60\t14\t83\t$42.00\n" +
		"5\t1\t1\t1\t2\t1\t10\t40\t30\t12\t-1\t\n"

	tokens, err := parseTSV([]byte(tsv))
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	assert.Equal(t, "TOTAL", tokens[0].Text)
	assert.InDelta(t, 91.5, tokens[0].Confidence, 1e-9)
	assert.Equal(t, 10, tokens[0].X)
	assert.Equal(t, 1, tokens[0].Page)
	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, "$42.00", tokens[1].Text)
	assert.Equal(t, 2, tokens[1].Word)
}

func TestTesseractRecognizerArgs(t *testing.T) {
	rec := &tesseractRecognizer{cfg: Config{Tesseract: "tesseract", Language: "eng", PSM: 6, OEM: 1, TessdataDir: "/opt/tessdata"}}
	args := rec.baseArgs("in.png")
	assert.Equal(t, []string{"in.png", "stdout", "-l", "eng", "--psm", "6", "--oem", "1", "--tessdata-dir", "/opt/tessdata"}, args)
}
