package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"invoice_integrity/internal/domain"
)

var (
	ErrInvalidSubmitter = errors.New("invalid submitter")
	ErrInvalidClient    = errors.New("invalid client")
	ErrInvalidEmail     = errors.New("invalid client email")
	ErrInvalidNumber    = errors.New("invalid invoice number")
	ErrInvalidItems     = errors.New("invalid line items")
	ErrInvalidTotal     = errors.New("invalid invoice total")
	ErrInvalidDueDate   = errors.New("invalid due date")
)

const maxFieldLength = 256

type InvoiceValidator struct {
	emailRegex *regexp.Regexp
}

func NewInvoiceValidator() *InvoiceValidator {
	return &InvoiceValidator{
		emailRegex: regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
	}
}

// ValidateInvoice checks the payload of a new invoice and reports every
// violated rule at once. The returned error matches each ErrInvalid* it holds.
func (v *InvoiceValidator) ValidateInvoice(inv *domain.Invoice) error {
	var errs []error

	if err := v.ValidateSubmitter(inv.SubmitterID); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(inv.ClientName) == "" || len(inv.ClientName) > maxFieldLength {
		errs = append(errs, ErrInvalidClient)
	}

	if !v.emailRegex.MatchString(inv.ClientEmail) || len(inv.ClientEmail) > maxFieldLength {
		errs = append(errs, ErrInvalidEmail)
	}

	if strings.TrimSpace(inv.InvoiceNumber) == "" || len(inv.InvoiceNumber) > maxFieldLength {
		errs = append(errs, ErrInvalidNumber)
	}

	if len(inv.Items) == 0 {
		errs = append(errs, ErrInvalidItems)
	}
	for i, item := range inv.Items {
		if strings.TrimSpace(item.Description) == "" {
			errs = append(errs, fmt.Errorf("%w: item %d has no description", ErrInvalidItems, i))
		}
		if item.Quantity.Sign() <= 0 {
			errs = append(errs, fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidItems, i))
		}
		if item.UnitPrice.Sign() < 0 {
			errs = append(errs, fmt.Errorf("%w: item %d unit price is negative", ErrInvalidItems, i))
		}
	}

	if inv.Total.Sign() <= 0 {
		errs = append(errs, ErrInvalidTotal)
	}

	if inv.DueDate.IsZero() {
		errs = append(errs, ErrInvalidDueDate)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %w", errors.Join(errs...))
	}

	return nil
}

func (v *InvoiceValidator) ValidateSubmitter(submitterID string) error {
	if strings.TrimSpace(submitterID) == "" || len(submitterID) > maxFieldLength {
		return ErrInvalidSubmitter
	}
	return nil
}
