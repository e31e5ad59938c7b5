// Package notary registers invoice fingerprints on an external ledger.
//
// A Notarizer is chosen once at start-up: Simulated for environments without
// ledger access, Live for a real registry contract. Submission failures are
// reported as ErrNotarization and are never fatal to invoice creation.
package notary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"invoice_integrity/internal/domain"
)

var ErrNotarization = errors.New("notarization failed")

type Notarizer interface {
	Submit(ctx context.Context, fingerprint domain.Fingerprint) (domain.NotarizationReceipt, error)
	Mode() domain.NotarizationMode
}

// LedgerClient is the narrow surface of the registry contract the live
// notarizer needs.
type LedgerClient interface {
	// RegisterInvoice broadcasts the registration and returns its transaction reference.
	RegisterInvoice(ctx context.Context, digest [32]byte) (string, error)
	// WaitForInclusion blocks until the transaction is mined. It reports false
	// with an error when the transaction was rejected.
	WaitForInclusion(ctx context.Context, txRef string) (bool, error)
}

type Config struct {
	Simulated       bool
	Endpoint        string
	PrivateKey      string
	RegistryAddress string
	Timeout         time.Duration
	PollInterval    time.Duration
}

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 2 * time.Second
)

func (c Config) Validate() error {
	if c.Simulated {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("ledger endpoint is required in live mode")
	}
	if c.PrivateKey == "" {
		return errors.New("ledger credential is required in live mode")
	}
	if c.RegistryAddress == "" {
		return errors.New("registry address is required in live mode")
	}
	return nil
}

// New selects the notarization strategy for the lifetime of the process.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Notarizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Simulated {
		logger.Info("Notarizer ready", slog.String("mode", string(domain.NotarizationSimulated)))
		return NewSimulated(), nil
	}

	client, err := DialEthereum(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect ledger: %w", err)
	}

	logger.Info("Notarizer ready",
		slog.String("mode", string(domain.NotarizationLive)),
		slog.String("registry", cfg.RegistryAddress))
	return NewLive(client, cfg.Timeout, logger), nil
}
