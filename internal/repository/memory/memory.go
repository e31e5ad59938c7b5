package memory

import (
	"invoice_integrity/internal/repository"
)

var (
	_ repository.InvoiceRepository    = (*InvoiceRepository)(nil)
	_ repository.FraudAlertRepository = (*FraudAlertRepository)(nil)
)
