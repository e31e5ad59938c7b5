package canonical

import (
	"invoice_integrity/internal/domain"
)

// SerializeInvoice returns the canonical bytes of the fingerprinted fields of
// an invoice. Line items keep their submitted order.
func SerializeInvoice(view domain.InvoiceView) ([]byte, error) {
	return Marshal(invoiceObject(view))
}

func invoiceObject(view domain.InvoiceView) map[string]any {
	items := make([]any, len(view.Items))
	for i, item := range view.Items {
		obj := map[string]any{
			"description": item.Description,
			"quantity":    Number(item.Quantity.String()),
			"unit_price":  Number(item.UnitPrice.String()),
		}
		if len(item.Attributes) > 0 {
			obj["attributes"] = item.Attributes
		}
		items[i] = obj
	}

	return map[string]any{
		"id":             view.ID,
		"submitter_id":   view.SubmitterID,
		"client_name":    view.ClientName,
		"client_email":   view.ClientEmail,
		"invoice_number": view.InvoiceNumber,
		"items":          items,
		"total":          Number(view.Total.String()),
		"due_date":       view.DueDate,
		"created_at":     view.CreatedAt,
	}
}
