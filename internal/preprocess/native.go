package preprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/billbox-app/invoice-ocr/internal/imagenorm"
)

// Result is what the native preprocessing collaborator returns on success.
type Result struct {
	Processed *image.Gray
	SkewAngle float64
	Threshold uint8
	Steps     []string
}

// Service is the capability interface for the external native preprocessing
// collaborator (deskew + binarize + denoise). It is resolved once at
// construction; a nil Service disables the tier entirely, so callers never
// probe for availability at run time.
type Service interface {
	Process(ctx context.Context, img *image.Gray) (Result, error)
}

// Runner executes external commands; satisfied by the OCR package's exec
// runner and stubbed in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecService drives a native preprocessing binary over temp files: the
// input is written as PNG, the binary writes the processed PNG and emits a
// JSON stats document on stdout.
type ExecService struct {
	Bin        string
	ScratchDir string // parent for per-run artifact dirs; empty -> os temp
	runner     Runner
}

// NewExecService wires a preprocessing binary behind the Service interface.
func NewExecService(bin string, runner Runner) *ExecService {
	return &ExecService{Bin: bin, runner: runner}
}

// nativeStats mirrors the stats document the preprocessing binary prints.
type nativeStats struct {
	Success      bool     `json:"success"`
	SkewAngle    float64  `json:"skew_angle"`
	Threshold    uint8    `json:"threshold"`
	StepNames    []string `json:"step_names"`
	ErrorMessage string   `json:"error_message"`
}

func (s *ExecService) Process(ctx context.Context, img *image.Gray) (Result, error) {
	if s.ScratchDir != "" {
		if err := os.MkdirAll(s.ScratchDir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create scratch dir: %w", err)
		}
	}
	tmpDir, err := os.MkdirTemp(s.ScratchDir, "billbox-prep-*")
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "in.png")
	out := filepath.Join(tmpDir, "out.png")
	if err := imaging.Save(img, in); err != nil {
		return Result{}, fmt.Errorf("write input image: %w", err)
	}

	stdout, stderr, err := s.runner.Run(ctx, s.Bin, "--input", in, "--output", out, "--json")
	if err != nil {
		return Result{}, fmt.Errorf("preprocess binary: %w (stderr: %s)", err, stderr)
	}

	var stats nativeStats
	if err := json.Unmarshal(stdout, &stats); err != nil {
		return Result{}, fmt.Errorf("parse preprocess stats: %w", err)
	}
	if !stats.Success {
		return Result{}, fmt.Errorf("native preprocessing failed: %s", stats.ErrorMessage)
	}

	processed, err := imagenorm.OpenFile(out)
	if err != nil {
		return Result{}, fmt.Errorf("read processed image: %w", err)
	}
	return Result{
		Processed: processed,
		SkewAngle: stats.SkewAngle,
		Threshold: stats.Threshold,
		Steps:     stats.StepNames,
	}, nil
}
