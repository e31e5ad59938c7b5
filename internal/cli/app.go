package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"invoice_integrity/internal/config"
	"invoice_integrity/internal/notary"
	"invoice_integrity/internal/processor"
	"invoice_integrity/internal/repository"
	"invoice_integrity/internal/repository/memory"
	"invoice_integrity/internal/repository/sqlite"
	"invoice_integrity/pkg/crypto"
)

// app is the set of components shared by the commands that touch storage.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	invoices  repository.InvoiceRepository
	alerts    repository.FraudAlertRepository
	engine    *crypto.FingerprintEngine
	notarizer notary.Notarizer
	processor *processor.InvoiceProcessor
	closers   []func() error
}

func setupLogger(level slog.Level, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(w, opts)
	return slog.New(handler)
}

func loadConfig(opts *RootOptions, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.ConfigFile, opts.EnvFile)
	if err != nil {
		return nil, nil, err
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, err
	}
	return cfg, setupLogger(level, logOut), nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		engine: crypto.NewFingerprintEngine(crypto.WithLogger(logger)),
	}

	if err := a.openStorage(); err != nil {
		return nil, err
	}

	notarizer, err := notary.New(ctx, cfg.Notary(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.notarizer = notarizer
	if live, ok := notarizer.(*notary.Live); ok {
		a.closers = append(a.closers, func() error {
			live.Close()
			return nil
		})
	}

	rules, err := cfg.FraudRules()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.processor = processor.NewInvoiceProcessor(
		a.invoices,
		a.alerts,
		processor.NewFraudDetector(rules, logger),
		a.engine,
		a.notarizer,
		logger,
	)

	return a, nil
}

func (a *app) openStorage() error {
	switch a.cfg.Storage.Driver {
	case "memory":
		a.invoices = memory.NewInvoiceRepository()
		a.alerts = memory.NewFraudAlertRepository()
		a.logger.Warn("Using in-memory storage, invoices are lost on exit")
	case "sqlite":
		store, err := sqlite.Open(a.cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.invoices = store.Invoices()
		a.alerts = store.Alerts()
		a.closers = append(a.closers, store.Close)
		a.logger.Info("Opened invoice store", slog.String("path", a.cfg.Storage.Path))
	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Close failed", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
