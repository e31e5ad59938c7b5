package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	StatusPending InvoiceStatus = "pending"
	StatusFlagged InvoiceStatus = "flagged"
)

type LineItem struct {
	Description string            `json:"description"`
	Quantity    Amount            `json:"quantity"`
	UnitPrice   Amount            `json:"unit_price"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

func (li LineItem) clone() LineItem {
	li.Attributes = maps.Clone(li.Attributes)
	return li
}

// InvoiceView is the part of an invoice that is fingerprinted and screened.
// A view must not be modified after a fingerprint has been derived from it.
type InvoiceView struct {
	ID            string
	SubmitterID   string
	ClientName    string
	ClientEmail   string
	InvoiceNumber string
	Items         []LineItem
	Total         Amount
	DueDate       time.Time
	CreatedAt     time.Time
}

type Invoice struct {
	ID            string               `json:"id"`
	SubmitterID   string               `json:"submitter_id"`
	ClientName    string               `json:"client_name"`
	ClientEmail   string               `json:"client_email"`
	InvoiceNumber string               `json:"invoice_number"`
	Items         []LineItem           `json:"items"`
	Total         Amount               `json:"total_amount"`
	DueDate       time.Time            `json:"due_date"`
	Status        InvoiceStatus        `json:"status"`
	Fingerprint   *Fingerprint         `json:"fingerprint,omitempty"`
	Notarization  *NotarizationReceipt `json:"notarization,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func NewInvoice(submitterID string) *Invoice {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Invoice{
		ID:          generateInvoiceID(),
		SubmitterID: submitterID,
		Status:      StatusPending,
		Items:       []LineItem{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (inv *Invoice) WithClient(name, email string) *Invoice {
	inv.ClientName = name
	inv.ClientEmail = email
	return inv
}

func (inv *Invoice) WithItems(number string, items []LineItem, total Amount) *Invoice {
	inv.InvoiceNumber = number
	inv.Items = items
	inv.Total = total
	return inv
}

func (inv *Invoice) WithDueDate(due time.Time) *Invoice {
	inv.DueDate = due.UTC()
	return inv
}

// View returns a deep copy of the fingerprinted fields.
func (inv *Invoice) View() InvoiceView {
	items := make([]LineItem, len(inv.Items))
	for i, item := range inv.Items {
		items[i] = item.clone()
	}

	return InvoiceView{
		ID:            inv.ID,
		SubmitterID:   inv.SubmitterID,
		ClientName:    inv.ClientName,
		ClientEmail:   inv.ClientEmail,
		InvoiceNumber: inv.InvoiceNumber,
		Items:         items,
		Total:         inv.Total,
		DueDate:       inv.DueDate,
		CreatedAt:     inv.CreatedAt,
	}
}

// Clone returns a deep copy of the invoice.
func (inv *Invoice) Clone() *Invoice {
	c := *inv
	if inv.Items != nil {
		c.Items = make([]LineItem, len(inv.Items))
		for i, item := range inv.Items {
			c.Items[i] = item.clone()
		}
	}
	if inv.Fingerprint != nil {
		fp := *inv.Fingerprint
		c.Fingerprint = &fp
	}
	if inv.Notarization != nil {
		receipt := *inv.Notarization
		c.Notarization = &receipt
	}
	return &c
}

func (inv *Invoice) IsNotarized() bool {
	return inv.Notarization != nil
}

type FraudAlert struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	Severity  Severity  `json:"severity"`
	Reasons   []string  `json:"reasons"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

func NewFraudAlert(invoiceID string, verdict FraudVerdict) *FraudAlert {
	return &FraudAlert{
		ID:        generateInvoiceID(),
		InvoiceID: invoiceID,
		Severity:  verdict.Severity,
		Reasons:   append([]string{}, verdict.Reasons...),
		CreatedAt: time.Now().UTC(),
	}
}

func generateInvoiceID() string {
	return uuid.Must(uuid.NewV7()).String()
}
