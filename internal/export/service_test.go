package export

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/billbox-app/invoice-ocr/constants"
	"github.com/billbox-app/invoice-ocr/internal/entity"
)

type stubInvoiceRepo struct {
	invoices []*entity.Invoice
	err      error

	gotFrom, gotTo *time.Time
}

func (s *stubInvoiceRepo) Save(context.Context, *entity.Invoice) error { return nil }

func (s *stubInvoiceRepo) GetByID(context.Context, uuid.UUID) (*entity.Invoice, error) {
	return nil, nil
}

func (s *stubInvoiceRepo) List(_ context.Context, from, to *time.Time) ([]*entity.Invoice, error) {
	s.gotFrom, s.gotTo = from, to
	return s.invoices, s.err
}

func TestExportInvoicesXLSX(t *testing.T) {
	amount := decimal.RequireFromString("1627.50")
	due := time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)
	repo := &stubInvoiceRepo{invoices: []*entity.Invoice{
		{
			ID:           uuid.New(),
			SourcePath:   "/invoices/acme.png",
			Status:       constants.RecordStatusProcessed,
			VendorName:   "Acme Corporation",
			Amount:       &amount,
			CurrencyCode: constants.DefaultCurrency,
			DueDate:      &due,
			ProcessedAt:  time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:           uuid.New(),
			SourcePath:   "/invoices/broken.png",
			Status:       constants.RecordStatusFailed,
			CurrencyCode: constants.DefaultCurrency,
			ErrorMessage: "OCR failed: unreadable image",
			ProcessedAt:  time.Date(2024, time.February, 2, 10, 0, 0, 0, time.UTC),
		},
	}}
	svc := NewService(repo, slog.Default())

	data, err := svc.ExportInvoicesXLSX(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Processed Date", rows[0][0])
	assert.Equal(t, "Acme Corporation", rows[1][1])
	assert.Equal(t, "1627.50", rows[1][2])
	assert.Equal(t, "2024-02-15", rows[1][4])
	assert.Equal(t, "FAILED", rows[2][5])
}

func TestExportWindowDefaultsToToday(t *testing.T) {
	repo := &stubInvoiceRepo{}
	svc := NewService(repo, slog.Default())

	from := time.Date(2024, time.January, 1, 15, 30, 0, 0, time.UTC)
	_, err := svc.ExportInvoicesXLSX(context.Background(), &from, nil)
	require.NoError(t, err)

	require.NotNil(t, repo.gotFrom)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), *repo.gotFrom)
	require.NotNil(t, repo.gotTo)
	assert.False(t, repo.gotTo.Before(*repo.gotFrom))
}

func TestExportPropagatesRepositoryError(t *testing.T) {
	repo := &stubInvoiceRepo{err: errors.New("connection lost")}
	svc := NewService(repo, slog.Default())

	_, err := svc.ExportInvoicesXLSX(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "connection lost")
}
