package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/repository"
)

type InvoiceRepository struct {
	db *sql.DB
}

const invoiceColumns = `id, submitter_id, client_name, client_email, invoice_number, items,
	total_amount, due_date, status, fingerprint, notarization_mode, notarization_tx,
	notarization_confirmed, created_at, updated_at`

func (r *InvoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	items, err := json.Marshal(invoice.Items)
	if err != nil {
		return fmt.Errorf("write invoice: encode items: %w", err)
	}

	invoice.UpdatedAt = time.Now().UTC()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO invoices
		(id, submitter_id, client_name, client_email, contact_key, invoice_number, items,
		 total_amount, due_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		invoice.ID,
		invoice.SubmitterID,
		invoice.ClientName,
		invoice.ClientEmail,
		contactKey(invoice.ClientEmail),
		invoice.InvoiceNumber,
		string(items),
		invoice.Total.String(),
		formatTime(invoice.DueDate),
		string(invoice.Status),
		formatTime(invoice.CreatedAt),
		formatTime(invoice.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: invoice %s", repository.ErrDuplicate, invoice.ID)
		}
		return fmt.Errorf("write invoice: %w", err)
	}

	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)

	invoice, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: invoice %s", repository.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *InvoiceRepository) UpdateIntegrity(ctx context.Context, id string, fingerprint domain.Fingerprint, receipt *domain.NotarizationReceipt) error {
	now := formatTime(time.Now())

	var (
		res sql.Result
		err error
	)
	if receipt == nil {
		res, err = r.db.ExecContext(ctx, `
			UPDATE invoices SET fingerprint = ?, updated_at = ? WHERE id = ?
		`, fingerprint.String(), now, id)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE invoices
			SET fingerprint = ?, notarization_mode = ?, notarization_tx = ?,
			    notarization_confirmed = ?, updated_at = ?
			WHERE id = ?
		`, fingerprint.String(), string(receipt.Mode), receipt.TransactionRef, receipt.Confirmed, now, id)
	}
	if err != nil {
		return fmt.Errorf("update invoice integrity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update invoice integrity: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: invoice %s", repository.ErrNotFound, id)
	}
	return nil
}

func (r *InvoiceRepository) ExistsByInvoiceNumber(ctx context.Context, submitterID, invoiceNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM invoices WHERE submitter_id = ? AND invoice_number = ?)
	`, submitterID, invoiceNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query invoice number: %w", err)
	}
	return exists, nil
}

// AverageTotal averages in decimal arithmetic rather than SQLite's AVG, which
// works in floating point.
func (r *InvoiceRepository) AverageTotal(ctx context.Context, submitterID string) (domain.Amount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT total_amount FROM invoices WHERE submitter_id = ?
	`, submitterID)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	var totals []domain.Amount
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return domain.Amount{}, fmt.Errorf("scan total: %w", err)
		}
		total, err := domain.ParseAmount(raw)
		if err != nil {
			return domain.Amount{}, err
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return domain.Amount{}, fmt.Errorf("iterate totals: %w", err)
	}

	return domain.MeanAmount(totals)
}

func (r *InvoiceRepository) CountByClientContact(ctx context.Context, clientEmail string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invoices WHERE contact_key = ?
	`, contactKey(clientEmail)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count client contact: %w", err)
	}
	return count, nil
}

func (r *InvoiceRepository) ListBySubmitter(ctx context.Context, submitterID string, limit, offset int) ([]*domain.Invoice, error) {
	return r.list(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE submitter_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, submitterID, sqlLimit(limit), offset)
}

func (r *InvoiceRepository) ListPendingNotarization(ctx context.Context, limit int) ([]*domain.Invoice, error) {
	return r.list(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE notarization_tx IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, sqlLimit(limit))
}

func (r *InvoiceRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	invoices := []*domain.Invoice{}
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	return invoices, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*domain.Invoice, error) {
	var (
		invoice                       domain.Invoice
		items, total, status          string
		dueDate, createdAt, updatedAt string
		fingerprint, mode, txRef      sql.NullString
		confirmed                     sql.NullBool
	)

	err := row.Scan(
		&invoice.ID,
		&invoice.SubmitterID,
		&invoice.ClientName,
		&invoice.ClientEmail,
		&invoice.InvoiceNumber,
		&items,
		&total,
		&dueDate,
		&status,
		&fingerprint,
		&mode,
		&txRef,
		&confirmed,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan invoice: %w", err)
	}

	if err := json.Unmarshal([]byte(items), &invoice.Items); err != nil {
		return nil, fmt.Errorf("decode items of %s: %w", invoice.ID, err)
	}
	if invoice.Total, err = domain.ParseAmount(total); err != nil {
		return nil, err
	}
	if invoice.DueDate, err = parseTime(dueDate); err != nil {
		return nil, err
	}
	if invoice.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if invoice.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	invoice.Status = domain.InvoiceStatus(status)

	if fingerprint.Valid {
		fp, err := domain.ParseFingerprint(fingerprint.String)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: %w", invoice.ID, err)
		}
		invoice.Fingerprint = &fp
	}
	if txRef.Valid {
		invoice.Notarization = &domain.NotarizationReceipt{
			Mode:           domain.NotarizationMode(mode.String),
			TransactionRef: txRef.String,
			Confirmed:      confirmed.Valid && confirmed.Bool,
		}
	}

	return &invoice, nil
}
