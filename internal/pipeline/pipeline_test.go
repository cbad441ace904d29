package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billbox-app/invoice-ocr/constants"
	"github.com/billbox-app/invoice-ocr/internal/ocr"
)

const testInvoiceText = "ACME CORPORATION\n123 Business Ave\nTOTAL AMOUNT DUE: $1627.50\nPayment is due by 02/15/2024"

type stubRecognizer struct {
	text string
	conf float64
	err  error
}

func (s stubRecognizer) Recognize(_ context.Context, _ *image.Gray) (string, []ocr.Token, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	var tokens []ocr.Token
	for i, w := range strings.Fields(s.text) {
		tokens = append(tokens, ocr.Token{Text: w, Confidence: s.conf, Word: i})
	}
	return s.text, tokens, nil
}

func fixedClock(year int, month time.Month, day int) func() time.Time {
	t := time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func newTestProcessor(t *testing.T, cfg Config, rec stubRecognizer) *Processor {
	t.Helper()
	cfg.Extraction.Now = fixedClock(2024, time.February, 1)
	proc := NewProcessor(cfg, nil, slog.Default())
	return proc.WithEngine(ocr.NewEngine(cfg.OCR, nil, slog.Default()).WithRecognizer(rec))
}

func testImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	for i := range img.Pix {
		img.Pix[i] = 240
	}
	return img
}

func writeTestImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, imaging.Save(testImage(), path))
	return path
}

func TestProcessImageSuccess(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{text: testInvoiceText, conf: 88})

	rec := proc.ProcessImage(context.Background(), testImage())

	assert.True(t, rec.Success)
	assert.Equal(t, constants.RecordStatusProcessed, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
	assert.InDelta(t, 88, rec.OCR.Confidence, 1e-9)

	require.NotNil(t, rec.Fields.Amount)
	assert.Equal(t, "1627.50", rec.Fields.Amount.StringFixed(2))
	require.NotNil(t, rec.Fields.DueDate)
	assert.Contains(t, strings.ToLower(rec.Fields.Vendor), "acme")

	assert.NotEqual(t, "", rec.ID.String())
	assert.GreaterOrEqual(t, rec.ProcessingTime, time.Duration(0))
}

func TestProcessImageOCRFailure(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{err: errors.New("engine not available")})

	rec := proc.ProcessImage(context.Background(), testImage())

	assert.False(t, rec.Success)
	assert.Equal(t, constants.RecordStatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "OCR failed")
	assert.Contains(t, rec.ErrorMessage, "engine not available")
}

func TestProcessImageLowConfidenceIsAdvisory(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{text: testInvoiceText, conf: 10})

	rec := proc.ProcessImage(context.Background(), testImage())

	assert.True(t, rec.Success)
	assert.InDelta(t, 10, rec.OCR.Confidence, 1e-9)
}

func TestProcessFileErrors(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{text: testInvoiceText, conf: 88})

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.png")},
		{"unsupported extension", filepath.Join(t.TempDir(), "invoice.txt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := proc.ProcessFile(context.Background(), tt.path)
			assert.False(t, rec.Success)
			assert.NotEmpty(t, rec.ErrorMessage)
			assert.Equal(t, tt.path, rec.SourcePath)
		})
	}
}

func TestProcessRequiredDueDateMissing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireDueDate = true
	proc := newTestProcessor(t, cfg, stubRecognizer{text: "Total: $50.00", conf: 90})

	rec := proc.ProcessImage(context.Background(), testImage())

	assert.False(t, rec.Success)
	assert.Equal(t, constants.RecordStatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "due date")
	require.NotNil(t, rec.Fields.Amount)
}

func TestProcessValidationJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireDueDate = true
	cfg.RequireVendor = true
	proc := newTestProcessor(t, cfg, stubRecognizer{text: "nothing useful here", conf: 70})

	rec := proc.ProcessImage(context.Background(), testImage())

	assert.False(t, rec.Success)
	assert.Len(t, rec.ValidationErrors, 3)
	assert.Contains(t, rec.ErrorMessage, "; ")
	assert.Contains(t, rec.ErrorMessage, "amount")
	assert.Contains(t, rec.ErrorMessage, "due date")
	assert.Contains(t, rec.ErrorMessage, "vendor")
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{text: testInvoiceText, conf: 88})

	good1 := writeTestImage(t, "a.png")
	good2 := writeTestImage(t, "b.png")
	missing := filepath.Join(t.TempDir(), "gone.png")

	records := proc.ProcessBatch(context.Background(), []string{good1, missing, good2})

	require.Len(t, records, 3)
	assert.True(t, records[0].Success)
	assert.False(t, records[1].Success)
	assert.NotEmpty(t, records[1].ErrorMessage)
	assert.True(t, records[2].Success)
}

func TestProcessBatchParallelPreservesOrder(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{text: testInvoiceText, conf: 88})

	paths := []string{
		writeTestImage(t, "a.png"),
		filepath.Join(t.TempDir(), "gone.png"),
		writeTestImage(t, "c.png"),
		writeTestImage(t, "d.png"),
		filepath.Join(t.TempDir(), "also-gone.png"),
	}

	records := proc.ProcessBatchParallel(context.Background(), paths, 3)

	require.Len(t, records, len(paths))
	for i, rec := range records {
		require.NotNil(t, rec)
		assert.Equal(t, paths[i], rec.SourcePath)
	}
	assert.True(t, records[0].Success)
	assert.False(t, records[1].Success)
	assert.False(t, records[4].Success)
}

func TestQueueProcessesAndDrains(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{text: testInvoiceText, conf: 88})

	var mu sync.Mutex
	results := map[string]*InvoiceRecord{}
	collect := func(job Job, rec *InvoiceRecord) {
		mu.Lock()
		defer mu.Unlock()
		results[job.Path] = rec
	}

	q := NewQueue(proc, slog.Default(), WithWorkers(2), WithQueueSize(8), WithResultHandler(collect))

	good := writeTestImage(t, "ok.png")
	missing := filepath.Join(t.TempDir(), "gone.png")
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: good}))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: missing}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 2)
	assert.True(t, results[good].Success)
	assert.False(t, results[missing].Success)
}

func TestRenderSuccessPayload(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{text: testInvoiceText, conf: 88})
	rec := proc.ProcessImage(context.Background(), testImage())

	payload := Render(rec)

	assert.True(t, payload.Success)
	assert.Nil(t, payload.Error)
	require.NotNil(t, payload.Data.Amount)
	assert.InDelta(t, 1627.50, *payload.Data.Amount, 1e-9)
	require.NotNil(t, payload.Data.DueDate)
	assert.Equal(t, "2024-02-15", *payload.Data.DueDate)
	require.NotNil(t, payload.Data.Vendor)
	assert.Equal(t, constants.DefaultCurrency, payload.Data.Currency)
	assert.Equal(t, len(rec.OCR.Text), payload.Metadata.TextLength)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NoError(t, ValidatePayloadJSON(data))
}

func TestRenderFailedPayload(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{err: errors.New("boom")})
	rec := proc.ProcessImage(context.Background(), testImage())

	payload := Render(rec)

	assert.False(t, payload.Success)
	require.NotNil(t, payload.Error)
	assert.Nil(t, payload.Data.Amount)
	assert.Nil(t, payload.Data.DueDate)
	assert.Nil(t, payload.Data.Vendor)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NoError(t, ValidatePayloadJSON(data))
}

func TestValidatePayloadJSONRejectsBadShape(t *testing.T) {
	err := ValidatePayloadJSON([]byte(`{"success": "yes"}`))
	assert.Error(t, err)
}

func TestShutdownWithConcurrentBackpressure(t *testing.T) {
	proc := newTestProcessor(t, DefaultConfig(), stubRecognizer{text: testInvoiceText, conf: 88})

	gate := make(chan struct{})
	var mu sync.Mutex
	processed := 0
	collect := func(Job, *InvoiceRecord) {
		<-gate
		mu.Lock()
		processed++
		mu.Unlock()
	}

	q := NewQueue(proc, slog.Default(), WithWorkers(1), WithQueueSize(1), WithResultHandler(collect))
	good := writeTestImage(t, "ok.png")

	// First job is accepted synchronously and pins the worker on the gate.
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: good}))

	var producers sync.WaitGroup
	for i := 0; i < 4; i++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			_ = q.Enqueue(context.Background(), Job{Path: good})
		}()
	}

	// Let producers pile up against the one-slot buffer, then release the
	// worker and shut down while sends may still be in flight.
	time.Sleep(50 * time.Millisecond)
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		q.Shutdown(ctx)
		close(done)
	}()

	producers.Wait()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown blocked behind a backpressured enqueue")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, processed, 1)
	assert.LessOrEqual(t, processed, 5)
}
