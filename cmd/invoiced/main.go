// Command invoiced watches one or more directories for new invoice
// images, runs each through the pipeline, and stores the records.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/billbox-app/invoice-ocr/internal/common"
	"github.com/billbox-app/invoice-ocr/internal/entity"
	"github.com/billbox-app/invoice-ocr/internal/ingest"
	"github.com/billbox-app/invoice-ocr/internal/ocr"
	"github.com/billbox-app/invoice-ocr/internal/pipeline"
	"github.com/billbox-app/invoice-ocr/internal/preprocess"
	repo "github.com/billbox-app/invoice-ocr/internal/repository"
)

func main() {
	var (
		scan     = flag.Bool("scan", false, "process files already present at startup")
		debounce = flag.Duration("debounce", 500*time.Millisecond, "coalesce rapid file events")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	roots := flag.Args()
	if len(roots) == 0 {
		if _, err := fmt.Fprintln(os.Stderr, "usage: invoiced [flags] <dir> [dir...]"); err != nil {
			fmt.Println("usage: invoiced [flags] <dir> [dir...]")
		}
		os.Exit(2)
	}

	appCfg := common.LoadConfig()
	if appCfg.Database.DSN == "" {
		logger.Error("DB_URL required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := repo.Open(ctx, repo.Config{
		DSN:             appCfg.Database.DSN,
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
	invoices := repo.NewInvoiceRepository(db, repo.DriverFor(appCfg.Database.DSN), logger)

	cfg := pipeline.DefaultConfig()
	cfg.OCR.Tesseract = appCfg.OCR.Tesseract
	cfg.OCR.Language = appCfg.OCR.Language
	cfg.OCR.PSM = appCfg.OCR.PSM
	cfg.OCR.OEM = appCfg.OCR.OEM
	cfg.OCR.TessdataDir = appCfg.OCR.TessdataDir
	cfg.OCR.ScratchDir = appCfg.OCR.ArtifactCacheDir
	cfg.MinOCRConfidence = appCfg.Pipeline.MinOCRConfidence
	cfg.RequireAmount = appCfg.Pipeline.RequireAmount
	cfg.RequireDueDate = appCfg.Pipeline.RequireDueDate
	cfg.RequireVendor = appCfg.Pipeline.RequireVendor

	var native preprocess.Service
	if appCfg.OCR.PreprocessBin != "" {
		svc := preprocess.NewExecService(appCfg.OCR.PreprocessBin, ocr.NewExecRunner(logger))
		svc.ScratchDir = appCfg.OCR.ArtifactCacheDir
		native = svc
	}
	proc := pipeline.NewProcessor(cfg, native, logger)

	queue := pipeline.NewQueue(proc, logger,
		pipeline.WithWorkers(appCfg.Pipeline.Workers),
		pipeline.WithProcessTimeout(appCfg.Pipeline.ProcessTimeout),
		pipeline.WithResultHandler(func(job pipeline.Job, rec *pipeline.InvoiceRecord) {
			saveCtx, cancel := context.WithTimeout(context.Background(), appCfg.Database.DialTimeout)
			defer cancel()
			if err := invoices.Save(saveCtx, entity.FromRecord(rec)); err != nil {
				logger.Error("save invoice", "path", job.Path, "error", err)
			}
		}),
	)

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       roots,
		InitialScan: *scan,
		Debounce:    *debounce,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("start watcher", "error", err)
		os.Exit(1)
	}
	logger.Info("watching for invoices", "roots", roots)

	health := time.NewTicker(time.Minute)
	defer health.Stop()

	for {
		select {
		case <-health.C:
			if err := repo.HealthCheck(ctx, db, appCfg.Database.DialTimeout, logger); err != nil {
				logger.Error("db health check", "error", err)
			}
		case <-ctx.Done():
			logger.Info("shutting down")
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			queue.Shutdown(drainCtx)
			cancel()
			return
		case path, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := queue.Enqueue(ctx, pipeline.Job{Path: path, SubmittedAt: time.Now()}); err != nil {
				logger.Error("enqueue", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Error("watcher", "error", err)
		}
	}
}
