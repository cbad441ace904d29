// Package ocr turns invoice images into text plus positional metadata.
// The engine sequences the image normalizer, the preprocessing fallback
// chain, and an external text-recognition collaborator, and always returns
// a structured Result instead of raising past its boundary.
package ocr

import (
	"log/slog"

	"github.com/billbox-app/invoice-ocr/internal/preprocess"
)

// Config holds recognition settings for one engine instance. Constructed
// once and read-only afterwards.
type Config struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Language    string // default "eng"
	TessdataDir string
	ScratchDir  string // parent for per-run artifact dirs; empty -> os temp

	PSM int // page segmentation; 6 = single uniform block, good for invoices
	OEM int // 1 = LSTM; leave 0 to use default

	// ConfidenceThreshold drops tokens at or below this confidence
	// (0..100). The default accepts any confidence > 0.
	ConfidenceThreshold float64

	IncludeWordBoxes bool
	IncludeLineBoxes bool
}

// DefaultConfig returns the invoice-tuned configuration.
func DefaultConfig() Config {
	return Config{
		Language:         "eng",
		PSM:              6,
		OEM:              1,
		IncludeWordBoxes: true,
		IncludeLineBoxes: true,
	}
}

// Token is a single recognized word with its bounding box and the layout
// indices the recognition engine assigns to it.
type Token struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Page       int     `json:"page"`
	Block      int     `json:"block"`
	Paragraph  int     `json:"paragraph"`
	Line       int     `json:"line"`
	Word       int     `json:"word"`
}

// LineBox is the aggregation of the tokens sharing one
// (page, block, paragraph, line) tuple: union bounds, mean confidence,
// text joined by single spaces in original order.
type LineBox struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Page       int     `json:"page"`
	Block      int     `json:"block"`
	Paragraph  int     `json:"paragraph"`
	Line       int     `json:"line"`
}

// Result is the structured outcome of one OCR run. Text is non-empty only
// when Success is true; Confidence is 0 when no tokens were accepted.
type Result struct {
	Text               string            `json:"text"`
	Confidence         float64           `json:"confidence"` // 0..100, mean over accepted tokens
	WordBoxes          []Token           `json:"word_boxes,omitempty"`
	LineBoxes          []LineBox         `json:"line_boxes,omitempty"`
	PreprocessingStats map[string]string `json:"preprocessing_stats,omitempty"`
	Success            bool              `json:"success"`
	ErrorMessage       string            `json:"error_message,omitempty"`
}

// Engine runs the full image-to-text stage.
type Engine struct {
	cfg        Config
	chain      *preprocess.Chain
	recognizer Recognizer
	logger     *slog.Logger
}

// NewEngine wires the engine. A nil native preprocessing Service disables
// the chain's second tier; the recognizer defaults to the Tesseract binary
// driven through an exec runner.
func NewEngine(cfg Config, native preprocess.Service, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Engine{
		cfg:        cfg,
		chain:      preprocess.NewChain(native, logger),
		recognizer: &tesseractRecognizer{cfg: cfg, runner: execRunner{logger: logger}},
		logger:     logger,
	}
}

// WithRecognizer swaps the recognition collaborator; used by tests and by
// callers bringing their own engine binding.
func (e *Engine) WithRecognizer(r Recognizer) *Engine {
	e.recognizer = r
	return e
}
