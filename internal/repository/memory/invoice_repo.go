package memory

import (
	"context"
	"fmt"
	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/repository"
	"sort"
	"strings"
	"sync"
	"time"
)

type InvoiceRepository struct {
	mu             sync.RWMutex
	invoices       map[string]*domain.Invoice
	submitterIndex map[string][]string
	contactIndex   map[string]int
}

func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{
		invoices:       make(map[string]*domain.Invoice),
		submitterIndex: make(map[string][]string),
		contactIndex:   make(map[string]int),
	}
}

func (r *InvoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.invoices[invoice.ID]; exists {
		return fmt.Errorf("%w: invoice %s", repository.ErrDuplicate, invoice.ID)
	}

	invoice.UpdatedAt = time.Now().UTC()
	r.invoices[invoice.ID] = invoice.Clone()

	r.submitterIndex[invoice.SubmitterID] = append(r.submitterIndex[invoice.SubmitterID], invoice.ID)
	r.contactIndex[contactKey(invoice.ClientEmail)]++

	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invoice, exists := r.invoices[id]
	if !exists {
		return nil, fmt.Errorf("%w: invoice %s", repository.ErrNotFound, id)
	}
	return invoice.Clone(), nil
}

func (r *InvoiceRepository) UpdateIntegrity(ctx context.Context, id string, fingerprint domain.Fingerprint, receipt *domain.NotarizationReceipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	invoice, exists := r.invoices[id]
	if !exists {
		return fmt.Errorf("%w: invoice %s", repository.ErrNotFound, id)
	}

	invoice.Fingerprint = &fingerprint
	if receipt != nil {
		stored := *receipt
		invoice.Notarization = &stored
	}
	invoice.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *InvoiceRepository) ExistsByInvoiceNumber(ctx context.Context, submitterID, invoiceNumber string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.submitterIndex[submitterID] {
		if r.invoices[id].InvoiceNumber == invoiceNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *InvoiceRepository) AverageTotal(ctx context.Context, submitterID string) (domain.Amount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.submitterIndex[submitterID]
	totals := make([]domain.Amount, 0, len(ids))
	for _, id := range ids {
		totals = append(totals, r.invoices[id].Total)
	}

	return domain.MeanAmount(totals)
}

func (r *InvoiceRepository) CountByClientContact(ctx context.Context, clientEmail string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.contactIndex[contactKey(clientEmail)], nil
}

func (r *InvoiceRepository) ListBySubmitter(ctx context.Context, submitterID string, limit, offset int) ([]*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := append([]string(nil), r.submitterIndex[submitterID]...)
	sort.Slice(ids, func(i, j int) bool {
		return r.invoices[ids[i]].CreatedAt.After(r.invoices[ids[j]].CreatedAt)
	})

	if offset >= len(ids) {
		return []*domain.Invoice{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(ids) {
		end = len(ids)
	}

	result := make([]*domain.Invoice, 0, end-offset)
	for _, id := range ids[offset:end] {
		result = append(result, r.invoices[id].Clone())
	}
	return result, nil
}

func (r *InvoiceRepository) ListPendingNotarization(ctx context.Context, limit int) ([]*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Invoice
	for _, invoice := range r.invoices {
		if invoice.Notarization == nil {
			result = append(result, invoice.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// contactKey folds case so Client@Example.com and client@example.com count
// as one contact.
func contactKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
