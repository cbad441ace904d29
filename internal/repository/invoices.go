package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/billbox-app/invoice-ocr/constants"
	"github.com/billbox-app/invoice-ocr/internal/common"
	"github.com/billbox-app/invoice-ocr/internal/entity"
)

const invoicesSchema = `
CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	source_path TEXT NOT NULL,
	status TEXT NOT NULL,
	vendor_name TEXT NOT NULL DEFAULT '',
	amount TEXT,
	currency_code TEXT NOT NULL DEFAULT 'USD',
	due_date TIMESTAMP,
	ocr_confidence REAL NOT NULL DEFAULT 0,
	overall_confidence REAL NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

// Migrate creates the invoices table if it does not exist. The DDL is
// deliberately limited to the dialect subset SQLite and Postgres share.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, invoicesSchema); err != nil {
		return fmt.Errorf("%w: failed to create invoices table: %w", common.ErrDatabase, err)
	}
	return nil
}

type InvoiceRepository interface {
	Save(ctx context.Context, inv *entity.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error)
	List(ctx context.Context, from, to *time.Time) ([]*entity.Invoice, error)
}

type invoiceRepository struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// NewInvoiceRepository wraps db. driver is the registered driver name as
// returned by DriverFor; it controls placeholder syntax.
func NewInvoiceRepository(db *sql.DB, driver string, logger *slog.Logger) InvoiceRepository {
	return &invoiceRepository{
		db:     db,
		driver: driver,
		logger: logger,
	}
}

// rebind rewrites ? placeholders to $1..$n for the pgx driver. Queries
// are written in the SQLite style and rebound on the way out.
func (r *invoiceRepository) rebind(query string) string {
	if r.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *invoiceRepository) Save(ctx context.Context, inv *entity.Invoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	var amount sql.NullString
	if inv.Amount != nil {
		amount = sql.NullString{String: inv.Amount.String(), Valid: true}
	}
	var dueDate sql.NullTime
	if inv.DueDate != nil {
		dueDate = sql.NullTime{Time: *inv.DueDate, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO invoices (
			id, source_path, status, vendor_name, amount, currency_code,
			due_date, ocr_confidence, overall_confidence, error_message,
			processed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		inv.ID.String(), inv.SourcePath, string(inv.Status), inv.VendorName,
		amount, inv.CurrencyCode, dueDate, inv.OCRConfidence,
		inv.OverallConfidence, inv.ErrorMessage, inv.ProcessedAt, inv.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to save invoice", "id", inv.ID, "error", err)
		return fmt.Errorf("%w: failed to save invoice: %w", common.ErrDatabase, err)
	}
	return nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, source_path, status, vendor_name, amount, currency_code,
			due_date, ocr_confidence, overall_confidence, error_message,
			processed_at, created_at
		FROM invoices WHERE id = ?`), id.String())

	inv, err := scanInvoice(row.Scan)
	if err != nil {
		r.logger.Error("failed to get invoice", "id", id, "error", err)
		return nil, fmt.Errorf("%w: failed to get invoice: %w", common.ErrDatabase, err)
	}
	return inv, nil
}

func (r *invoiceRepository) List(ctx context.Context, from, to *time.Time) ([]*entity.Invoice, error) {
	query := `
		SELECT id, source_path, status, vendor_name, amount, currency_code,
			due_date, ocr_confidence, overall_confidence, error_message,
			processed_at, created_at
		FROM invoices`
	var args []any
	switch {
	case from != nil && to != nil:
		query += ` WHERE processed_at >= ? AND processed_at <= ?`
		args = append(args, *from, *to)
	case from != nil:
		query += ` WHERE processed_at >= ?`
		args = append(args, *from)
	case to != nil:
		query += ` WHERE processed_at <= ?`
		args = append(args, *to)
	}
	query += ` ORDER BY processed_at`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		r.logger.Error("failed to list invoices", "error", err)
		return nil, fmt.Errorf("%w: failed to list invoices: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var result []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan invoice: %w", common.ErrDatabase, err)
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list invoices: %w", common.ErrDatabase, err)
	}
	return result, nil
}

func scanInvoice(scan func(dest ...any) error) (*entity.Invoice, error) {
	var (
		inv     entity.Invoice
		id      string
		status  string
		amount  sql.NullString
		dueDate sql.NullTime
	)
	err := scan(
		&id, &inv.SourcePath, &status, &inv.VendorName, &amount,
		&inv.CurrencyCode, &dueDate, &inv.OCRConfidence,
		&inv.OverallConfidence, &inv.ErrorMessage,
		&inv.ProcessedAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	inv.Status = constants.RecordStatus(status)
	if amount.Valid {
		dec, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, err
		}
		inv.Amount = &dec
	}
	if dueDate.Valid {
		d := dueDate.Time
		inv.DueDate = &d
	}
	return &inv, nil
}
