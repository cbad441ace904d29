// Command invoice-ocr runs the full pipeline on a single invoice image
// and prints the API-ready JSON payload to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/billbox-app/invoice-ocr/internal/common"
	"github.com/billbox-app/invoice-ocr/internal/ocr"
	"github.com/billbox-app/invoice-ocr/internal/pipeline"
	"github.com/billbox-app/invoice-ocr/internal/preprocess"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		file     = flag.String("file", "", "invoice image to process (required)")
		strict   = flag.Bool("strict", false, "use the strict policy preset")
		lenient  = flag.Bool("lenient", false, "use the lenient policy preset")
		minConf  = flag.Float64("min-confidence", -1, "override the advisory minimum OCR confidence (0-100)")
		reqDue   = flag.Bool("require-due-date", false, "fail the record when no due date is found")
		reqVend  = flag.Bool("require-vendor", false, "fail the record when no vendor is found")
		validate = flag.Bool("validate", false, "validate the rendered payload against the JSON schema before printing")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *file == "" {
		printError("Error: --file is required\n")
		flag.Usage()
		os.Exit(2)
	}
	if *strict && *lenient {
		printError("Error: --strict and --lenient are mutually exclusive\n")
		os.Exit(2)
	}

	appCfg := common.LoadConfig()

	cfg := pipeline.DefaultConfig()
	switch {
	case *strict:
		cfg = pipeline.StrictConfig()
	case *lenient:
		cfg = pipeline.LenientConfig()
	}
	cfg.OCR.Tesseract = appCfg.OCR.Tesseract
	cfg.OCR.Language = appCfg.OCR.Language
	cfg.OCR.PSM = appCfg.OCR.PSM
	cfg.OCR.OEM = appCfg.OCR.OEM
	cfg.OCR.TessdataDir = appCfg.OCR.TessdataDir
	cfg.OCR.ScratchDir = appCfg.OCR.ArtifactCacheDir
	if *minConf >= 0 {
		cfg.MinOCRConfidence = *minConf
	}
	if *reqDue {
		cfg.RequireDueDate = true
	}
	if *reqVend {
		cfg.RequireVendor = true
	}

	var native preprocess.Service
	if appCfg.OCR.PreprocessBin != "" {
		svc := preprocess.NewExecService(appCfg.OCR.PreprocessBin, ocr.NewExecRunner(logger))
		svc.ScratchDir = appCfg.OCR.ArtifactCacheDir
		native = svc
	}

	proc := pipeline.NewProcessor(cfg, native, logger)

	ctx, cancel := context.WithTimeout(context.Background(), appCfg.Pipeline.ProcessTimeout)
	defer cancel()

	rec := proc.ProcessFile(ctx, *file)
	payload := pipeline.Render(rec)

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		logger.Error("marshal payload", "error", err)
		os.Exit(1)
	}
	if *validate {
		if err := pipeline.ValidatePayloadJSON(data); err != nil {
			logger.Error("payload validation failed", "error", err)
			os.Exit(1)
		}
	}

	fmt.Println(string(data))
	if !rec.Success {
		os.Exit(1)
	}
}
