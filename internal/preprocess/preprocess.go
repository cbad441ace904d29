// Package preprocess prepares invoice images for recognition through an
// ordered chain of increasingly conservative tiers. A tier failure
// short-circuits to the next tier; the chain itself never fails.
package preprocess

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"

	"github.com/disintegration/imaging"
)

// Tier method names recorded in the provenance stats.
const (
	MethodPrimary = "primary"
	MethodNative  = "native"
	MethodMinimal = "minimal"
)

// minimalThreshold is the fixed cutoff for the last-resort binarization.
const minimalThreshold = 127

// Stats carries free-form provenance for the chosen tier. "method" is
// always present; "threshold" and "skew_angle" appear when determinable.
type Stats map[string]string

// Chain runs the three preprocessing tiers in priority order.
type Chain struct {
	native Service // nil disables the native tier
	logger *slog.Logger

	// contrast/blur knobs for the primary tier
	contrastPct float64
	blurSigma   float64
}

// NewChain builds a chain. The native Service may be nil.
func NewChain(native Service, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		native:      native,
		logger:      logger,
		contrastPct: 20,
		blurSigma:   0.5,
	}
}

// Run returns the processed image plus provenance stats. Tiers are pure and
// idempotent; a tier's error or panic moves on to the next one, and the
// minimal tier always succeeds.
func (c *Chain) Run(ctx context.Context, img *image.Gray) (*image.Gray, Stats) {
	if out, stats, err := c.runTier(func() (*image.Gray, Stats, error) {
		return c.primary(img)
	}); err == nil {
		return out, stats
	} else {
		c.logger.Warn("primary preprocessing failed", "error", err)
	}

	if c.native != nil {
		if out, stats, err := c.runTier(func() (*image.Gray, Stats, error) {
			return c.runNative(ctx, img)
		}); err == nil {
			return out, stats
		} else {
			c.logger.Warn("native preprocessing failed", "error", err)
		}
	}

	return c.minimal(img)
}

// runTier recovers a panicking tier into an ordinary error.
func (c *Chain) runTier(tier func() (*image.Gray, Stats, error)) (out *image.Gray, stats Stats, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, stats = nil, nil
			err = fmt.Errorf("preprocessing tier panicked: %v", r)
		}
	}()
	return tier()
}

// primary applies contrast normalization, mild noise suppression, and Otsu
// binarization locally.
func (c *Chain) primary(img *image.Gray) (*image.Gray, Stats, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil, fmt.Errorf("empty input image")
	}
	enhanced := grayFrom(imaging.AdjustContrast(img, c.contrastPct))
	smoothed := grayFrom(imaging.Blur(enhanced, c.blurSigma))
	threshold := otsuThreshold(smoothed)
	out := binarize(smoothed, threshold)
	return out, Stats{
		"method":     MethodPrimary,
		"threshold":  fmt.Sprintf("%d", threshold),
		"skew_angle": "0.0",
	}, nil
}

func (c *Chain) runNative(ctx context.Context, img *image.Gray) (*image.Gray, Stats, error) {
	res, err := c.native.Process(ctx, img)
	if err != nil {
		return nil, nil, err
	}
	if res.Processed == nil || res.Processed.Bounds().Empty() {
		return nil, nil, fmt.Errorf("native service returned empty image")
	}
	stats := Stats{
		"method":     MethodNative,
		"threshold":  fmt.Sprintf("%d", res.Threshold),
		"skew_angle": fmt.Sprintf("%.2f", res.SkewAngle),
	}
	if len(res.Steps) > 0 {
		stats["steps_completed"] = fmt.Sprintf("%d", len(res.Steps))
	}
	return res.Processed, stats, nil
}

// minimal is the emergency tier: fixed-threshold binarization. It cannot
// fail; a structurally broken buffer falls back to the input unchanged.
func (c *Chain) minimal(img *image.Gray) (*image.Gray, Stats) {
	if img == nil || img.Bounds().Empty() {
		return img, Stats{"method": MethodMinimal, "fallback_reason": "unusable_input"}
	}
	out := binarize(img, minimalThreshold)
	return out, Stats{
		"method":          MethodMinimal,
		"threshold":       fmt.Sprintf("%d", minimalThreshold),
		"skew_angle":      "0.0",
		"fallback_reason": "all_preprocessing_failed",
	}
}

func grayFrom(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
