package notary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"invoice_integrity/internal/domain"
)

type Live struct {
	client  LedgerClient
	timeout time.Duration
	logger  *slog.Logger
}

func NewLive(client LedgerClient, timeout time.Duration, logger *slog.Logger) *Live {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Live{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

func (l *Live) Mode() domain.NotarizationMode {
	return domain.NotarizationLive
}

// Submit registers a primary fingerprint and waits for inclusion, bounded by
// the configured timeout. A registration that was broadcast but not mined in
// time yields an unconfirmed receipt; every other failure yields
// ErrNotarization and no receipt.
func (l *Live) Submit(ctx context.Context, fingerprint domain.Fingerprint) (domain.NotarizationReceipt, error) {
	word, err := fingerprint.Word()
	if err != nil {
		return domain.NotarizationReceipt{}, fmt.Errorf("%w: %w", ErrNotarization, err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	txRef, err := l.client.RegisterInvoice(ctx, word)
	if err != nil {
		return domain.NotarizationReceipt{}, fmt.Errorf("%w: register %s: %w", ErrNotarization, fingerprint, err)
	}

	l.logger.InfoContext(ctx, "Fingerprint registration broadcast",
		slog.String("fingerprint", fingerprint.String()),
		slog.String("tx", txRef))

	confirmed, err := l.client.WaitForInclusion(ctx, txRef)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		l.logger.WarnContext(ctx, "Fingerprint registration not confirmed in time",
			slog.String("tx", txRef),
			slog.Duration("waited", time.Since(start)))
		confirmed = false
	default:
		return domain.NotarizationReceipt{}, fmt.Errorf("%w: await %s: %w", ErrNotarization, txRef, err)
	}

	return domain.NotarizationReceipt{
		Mode:           domain.NotarizationLive,
		TransactionRef: txRef,
		Confirmed:      confirmed,
	}, nil
}

// Close releases the ledger connection if the client holds one.
func (l *Live) Close() {
	if c, ok := l.client.(interface{ Close() }); ok {
		c.Close()
	}
}
