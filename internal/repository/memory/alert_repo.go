package memory

import (
	"context"
	"fmt"
	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/repository"
	"sort"
	"sync"
)

type FraudAlertRepository struct {
	mu           sync.RWMutex
	alerts       map[string]*domain.FraudAlert
	invoiceIndex map[string][]string
}

func NewFraudAlertRepository() *FraudAlertRepository {
	return &FraudAlertRepository{
		alerts:       make(map[string]*domain.FraudAlert),
		invoiceIndex: make(map[string][]string),
	}
}

func (r *FraudAlertRepository) Create(ctx context.Context, alert *domain.FraudAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.alerts[alert.ID]; exists {
		return fmt.Errorf("%w: alert %s", repository.ErrDuplicate, alert.ID)
	}

	r.alerts[alert.ID] = alert
	r.invoiceIndex[alert.InvoiceID] = append(r.invoiceIndex[alert.InvoiceID], alert.ID)

	return nil
}

func (r *FraudAlertRepository) GetByInvoiceID(ctx context.Context, invoiceID string) ([]*domain.FraudAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.FraudAlert, 0, len(r.invoiceIndex[invoiceID]))
	for _, id := range r.invoiceIndex[invoiceID] {
		result = append(result, r.alerts[id])
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (r *FraudAlertRepository) Resolve(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, exists := r.alerts[id]
	if !exists {
		return fmt.Errorf("%w: alert %s", repository.ErrNotFound, id)
	}

	alert.Resolved = true
	return nil
}
