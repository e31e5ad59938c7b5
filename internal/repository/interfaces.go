package repository

import (
	"context"
	"errors"
	"invoice_integrity/internal/domain"
)

// HistoricalInvoiceQuery is the read-only view of past invoices used by fraud
// screening.
type HistoricalInvoiceQuery interface {
	ExistsByInvoiceNumber(ctx context.Context, submitterID, invoiceNumber string) (bool, error)
	// AverageTotal returns the mean total of the submitter's invoices, zero when none exist.
	AverageTotal(ctx context.Context, submitterID string) (domain.Amount, error)
	// CountByClientContact counts invoices for the contact across all submitters.
	CountByClientContact(ctx context.Context, clientEmail string) (int, error)
}

type InvoiceRepository interface {
	HistoricalInvoiceQuery

	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	UpdateIntegrity(ctx context.Context, id string, fingerprint domain.Fingerprint, receipt *domain.NotarizationReceipt) error
	ListBySubmitter(ctx context.Context, submitterID string, limit, offset int) ([]*domain.Invoice, error)
	ListPendingNotarization(ctx context.Context, limit int) ([]*domain.Invoice, error)
}

type FraudAlertRepository interface {
	Create(ctx context.Context, alert *domain.FraudAlert) error
	GetByInvoiceID(ctx context.Context, invoiceID string) ([]*domain.FraudAlert, error)
	Resolve(ctx context.Context, id string) error
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)
