package notary

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"invoice_integrity/internal/domain"
)

// Simulated fabricates confirmed receipts without any I/O.
type Simulated struct {
	seq atomic.Uint64
	now func() time.Time
}

func NewSimulated() *Simulated {
	return &Simulated{now: time.Now}
}

func (s *Simulated) Mode() domain.NotarizationMode {
	return domain.NotarizationSimulated
}

// Submit never fails. References are SIM_<unix millis>_<sequence>, so two
// submissions within the same millisecond still differ.
func (s *Simulated) Submit(_ context.Context, _ domain.Fingerprint) (domain.NotarizationReceipt, error) {
	n := s.seq.Add(1)
	return domain.NotarizationReceipt{
		Mode:           domain.NotarizationSimulated,
		TransactionRef: fmt.Sprintf("SIM_%d_%d", s.now().UnixMilli(), n),
		Confirmed:      true,
	}, nil
}
