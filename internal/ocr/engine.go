package ocr

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/billbox-app/invoice-ocr/constants"
	"github.com/billbox-app/invoice-ocr/internal/common"
	"github.com/billbox-app/invoice-ocr/internal/imagenorm"
)

// ExtractText runs the full OCR stage on an in-memory image. It never
// returns an error: every failure, including the fatal invalid-image
// condition, becomes a Result with Success=false.
func (e *Engine) ExtractText(ctx context.Context, img image.Image) Result {
	norm, err := imagenorm.Normalize(img)
	if err != nil {
		return e.failure(nil, err)
	}

	processed, stats := e.chain.Run(ctx, norm)

	// Some tiers emit intermediate buffers outside the canonical format;
	// re-normalize so the recognition engine always sees the exact shape
	// it expects.
	prepared, err := imagenorm.Normalize(processed)
	if err != nil {
		return e.failure(stats, fmt.Errorf("prepare for recognition: %w", err))
	}

	text, tokens, err := e.recognizer.Recognize(ctx, prepared)
	if err != nil {
		return e.failure(stats, fmt.Errorf("%w: %w", common.ErrRecognition, err))
	}

	accepted := acceptTokens(tokens, e.cfg.ConfidenceThreshold)

	res := Result{
		Text:               strings.TrimSpace(text),
		Confidence:         meanConfidence(accepted),
		PreprocessingStats: stats,
		Success:            true,
	}
	if e.cfg.IncludeWordBoxes {
		res.WordBoxes = accepted
	}
	if e.cfg.IncludeLineBoxes {
		res.LineBoxes = groupLines(accepted)
	}

	e.logger.Debug("ocr extraction complete",
		"chars", len(res.Text),
		"tokens", len(accepted),
		"confidence", res.Confidence,
		"method", stats["method"],
	)
	return res
}

// ProcessImageFile loads an image from disk and runs ExtractText. File
// problems surface as a failed Result, never as an error.
func (e *Engine) ProcessImageFile(ctx context.Context, path string) Result {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if !constants.IsImageExt(ext) {
		return e.failure(nil, fmt.Errorf("%w: extension %q", common.ErrUnsupportedFormat, ext))
	}
	if _, err := os.Stat(path); err != nil {
		return e.failure(nil, fmt.Errorf("image file not found: %s", path))
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return e.failure(nil, fmt.Errorf("could not load image %s: %w", path, err))
	}
	return e.ExtractText(ctx, img)
}

// BatchProcess runs ProcessImageFile over each path independently; one
// item's failure never prevents processing the rest. Output order matches
// input order.
func (e *Engine) BatchProcess(ctx context.Context, paths []string) []Result {
	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		res := e.ProcessImageFile(ctx, path)
		results = append(results, res)
		e.logger.Info("batch item processed", "path", path, "success", res.Success)
	}
	return results
}

func (e *Engine) failure(stats map[string]string, err error) Result {
	e.logger.Error("ocr extraction failed", "error", err)
	return Result{
		PreprocessingStats: stats,
		Success:            false,
		ErrorMessage:       err.Error(),
	}
}
