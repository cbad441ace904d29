// Command invoice-batch processes a directory of invoice images in
// parallel, stores the records, and writes an XLSX summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/billbox-app/invoice-ocr/constants"
	"github.com/billbox-app/invoice-ocr/internal/common"
	"github.com/billbox-app/invoice-ocr/internal/entity"
	"github.com/billbox-app/invoice-ocr/internal/export"
	"github.com/billbox-app/invoice-ocr/internal/ocr"
	"github.com/billbox-app/invoice-ocr/internal/pipeline"
	"github.com/billbox-app/invoice-ocr/internal/preprocess"
	repo "github.com/billbox-app/invoice-ocr/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory to process invoices from (required)")
		out     = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		dbDSN   = flag.String("db", "", "database DSN (optional, defaults to DB_URL or invoices.db next to --dir)")
		workers = flag.Int("workers", 0, "parallel workers (defaults to PIPELINE_WORKERS)")
		strict  = flag.Bool("strict", false, "use the strict policy preset")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "invoices.xlsx")
	}

	appCfg := common.LoadConfig()
	if *dbDSN == "" {
		*dbDSN = appCfg.Database.DSN
	}
	if *dbDSN == "" {
		*dbDSN = filepath.Join(filepath.Dir(*dir), "invoices.db")
	}
	if *workers <= 0 {
		*workers = appCfg.Pipeline.Workers
	}

	paths, err := collectImages(*dir)
	if err != nil {
		logger.Error("scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		logger.Error("no image files found", "dir", *dir)
		os.Exit(1)
	}
	logger.Info("starting batch", "dir", *dir, "files", len(paths), "workers", *workers)

	ctx := context.Background()

	db, err := repo.Open(ctx, repo.Config{
		DSN:             *dbDSN,
		MaxConns:        appCfg.Database.MaxConns,
		MaxConnLifetime: appCfg.Database.MaxConnLifetime,
		DialTimeout:     appCfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)

	if err := repo.Migrate(ctx, db); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}
	invoices := repo.NewInvoiceRepository(db, repo.DriverFor(*dbDSN), logger)

	cfg := pipeline.DefaultConfig()
	if *strict {
		cfg = pipeline.StrictConfig()
	}
	cfg.OCR.Tesseract = appCfg.OCR.Tesseract
	cfg.OCR.Language = appCfg.OCR.Language
	cfg.OCR.PSM = appCfg.OCR.PSM
	cfg.OCR.OEM = appCfg.OCR.OEM
	cfg.OCR.TessdataDir = appCfg.OCR.TessdataDir
	cfg.OCR.ScratchDir = appCfg.OCR.ArtifactCacheDir
	cfg.MinOCRConfidence = appCfg.Pipeline.MinOCRConfidence

	var native preprocess.Service
	if appCfg.OCR.PreprocessBin != "" {
		svc := preprocess.NewExecService(appCfg.OCR.PreprocessBin, ocr.NewExecRunner(logger))
		svc.ScratchDir = appCfg.OCR.ArtifactCacheDir
		native = svc
	}
	proc := pipeline.NewProcessor(cfg, native, logger)

	start := time.Now()
	records := proc.ProcessBatchParallel(ctx, paths, *workers)

	var processed, failed int
	for _, rec := range records {
		if rec.Success {
			processed++
		} else {
			failed++
		}
		if err := invoices.Save(ctx, entity.FromRecord(rec)); err != nil {
			logger.Error("save invoice", "path", rec.SourcePath, "error", err)
		}
	}
	logger.Info("batch complete",
		"processed", processed,
		"failed", failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	svc := export.NewService(invoices, logger)
	data, err := svc.ExportInvoicesXLSX(ctx, nil, nil)
	if err != nil {
		logger.Error("export", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("write xlsx", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("wrote summary", "path", *out, "rows", len(records))

	if failed > 0 {
		os.Exit(1)
	}
}

// collectImages lists the supported image files directly under dir in
// lexical order.
func collectImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := constants.NormalizeExt(filepath.Ext(e.Name()))
		if constants.IsImageExt(ext) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
