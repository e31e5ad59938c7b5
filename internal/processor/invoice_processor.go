package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/notary"
	"invoice_integrity/internal/repository"
	"invoice_integrity/pkg/crypto"
)

// AlertNotifier delivers fraud alerts out of band.
type AlertNotifier interface {
	SendFraudAlert(ctx context.Context, invoice *domain.Invoice, verdict domain.FraudVerdict) error
}

type MetricsRecorder interface {
	RecordVerdict(severity string)
	RecordNotarization(mode, outcome string)
}

const (
	outcomeConfirmed = "confirmed"
	outcomePending   = "pending"
	outcomeFailed    = "failed"

	followUpTimeout = 10 * time.Second
)

type InvoiceProcessor struct {
	invoiceRepo   repository.InvoiceRepository
	alertRepo     repository.FraudAlertRepository
	fraudDetector *FraudDetector
	fingerprints  *crypto.FingerprintEngine
	notarizer     notary.Notarizer
	notifier      AlertNotifier
	metrics       MetricsRecorder
	logger        *slog.Logger
}

type SubmissionResult struct {
	Invoice *domain.Invoice
	Verdict domain.FraudVerdict
	Alert   *domain.FraudAlert
	// NotarizationErr is set when the fingerprint could not be notarized.
	// The invoice is stored regardless.
	NotarizationErr error
}

type VerificationResult struct {
	InvoiceID string              `json:"invoice_id"`
	Stored    *domain.Fingerprint `json:"stored,omitempty"`
	Computed  domain.Fingerprint  `json:"computed"`
	Match     bool                `json:"match"`
}

type NotarizationSummary struct {
	Attempted int `json:"attempted"`
	Confirmed int `json:"confirmed"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
}

func NewInvoiceProcessor(
	invoiceRepo repository.InvoiceRepository,
	alertRepo repository.FraudAlertRepository,
	fraudDetector *FraudDetector,
	fingerprints *crypto.FingerprintEngine,
	notarizer notary.Notarizer,
	logger *slog.Logger,
) *InvoiceProcessor {
	if logger == nil {
		logger = slog.Default()
	}

	return &InvoiceProcessor{
		invoiceRepo:   invoiceRepo,
		alertRepo:     alertRepo,
		fraudDetector: fraudDetector,
		fingerprints:  fingerprints,
		notarizer:     notarizer,
		metrics:       nopMetrics{},
		logger:        logger,
	}
}

func (p *InvoiceProcessor) WithNotifier(notifier AlertNotifier) *InvoiceProcessor {
	p.notifier = notifier
	return p
}

func (p *InvoiceProcessor) WithMetrics(metrics MetricsRecorder) *InvoiceProcessor {
	if metrics != nil {
		p.metrics = metrics
	}
	return p
}

// SubmitInvoice screens, stores, fingerprints and notarizes a new invoice.
//
// Fraud screening runs against history that excludes the new invoice and must
// succeed: ErrEvaluation aborts the submission before anything is written.
// The remaining writes are independent; a notarization failure is reported in
// the result, never as an error.
func (p *InvoiceProcessor) SubmitInvoice(ctx context.Context, invoice *domain.Invoice) (*SubmissionResult, error) {
	view := invoice.View()

	var (
		verdict     domain.FraudVerdict
		fingerprint domain.Fingerprint
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		verdict, err = p.fraudDetector.Evaluate(gctx, p.invoiceRepo, view.SubmitterID, view)
		return err
	})
	g.Go(func() error {
		var err error
		fingerprint, _, err = p.fingerprints.FingerprintInvoice(view)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.metrics.RecordVerdict(string(verdict.Severity))
	if verdict.Flagged {
		invoice.Status = domain.StatusFlagged
	}

	if err := p.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	result := &SubmissionResult{
		Invoice: invoice,
		Verdict: verdict,
	}

	// The caller's deadline bounds the ledger wait. An expired wait yields an
	// unconfirmed or absent receipt.
	receipt, err := p.notarize(ctx, invoice.ID, fingerprint)
	if err != nil {
		result.NotarizationErr = err
	}

	// The invoice row exists from here on, so its fingerprint and alert are
	// written even if the caller has gone away.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
	defer cancel()

	if err := p.invoiceRepo.UpdateIntegrity(wctx, invoice.ID, fingerprint, receipt); err != nil {
		return result, fmt.Errorf("store fingerprint: %w", err)
	}
	invoice.Fingerprint = &fingerprint
	invoice.Notarization = receipt

	if verdict.Flagged {
		alert := domain.NewFraudAlert(invoice.ID, verdict)
		if err := p.alertRepo.Create(wctx, alert); err != nil {
			return result, fmt.Errorf("create fraud alert: %w", err)
		}
		result.Alert = alert

		if p.notifier != nil {
			if err := p.notifier.SendFraudAlert(wctx, invoice, verdict); err != nil {
				p.logger.WarnContext(ctx, "Failed to queue fraud alert notification",
					slog.String("invoice_id", invoice.ID),
					slog.String("error", err.Error()))
			}
		}
	}

	p.logger.InfoContext(ctx, "Invoice submitted",
		slog.String("invoice_id", invoice.ID),
		slog.String("submitter_id", invoice.SubmitterID),
		slog.String("status", string(invoice.Status)),
		slog.String("fingerprint", fingerprint.String()),
		slog.Bool("notarized", receipt != nil))

	return result, nil
}

// notarize converts every notarization failure into an absent receipt.
func (p *InvoiceProcessor) notarize(ctx context.Context, invoiceID string, fingerprint domain.Fingerprint) (*domain.NotarizationReceipt, error) {
	mode := string(p.notarizer.Mode())

	receipt, err := p.notarizer.Submit(ctx, fingerprint)
	if err != nil {
		p.metrics.RecordNotarization(mode, outcomeFailed)
		p.logger.WarnContext(ctx, "Notarization failed, invoice kept without receipt",
			slog.String("invoice_id", invoiceID),
			slog.String("mode", mode),
			slog.String("error", err.Error()))
		return nil, err
	}

	if receipt.Confirmed {
		p.metrics.RecordNotarization(mode, outcomeConfirmed)
	} else {
		p.metrics.RecordNotarization(mode, outcomePending)
	}
	return &receipt, nil
}

func (p *InvoiceProcessor) GetInvoice(ctx context.Context, id string) (*domain.Invoice, []*domain.FraudAlert, error) {
	invoice, err := p.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	alerts, err := p.alertRepo.GetByInvoiceID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load fraud alerts: %w", err)
	}
	return invoice, alerts, nil
}

func (p *InvoiceProcessor) ListInvoices(ctx context.Context, submitterID string, limit, offset int) ([]*domain.Invoice, error) {
	return p.invoiceRepo.ListBySubmitter(ctx, submitterID, limit, offset)
}

func (p *InvoiceProcessor) ResolveAlert(ctx context.Context, alertID string) error {
	return p.alertRepo.Resolve(ctx, alertID)
}

// VerifyInvoice recomputes the fingerprint of a stored invoice. Fingerprints
// of different algorithms never match.
func (p *InvoiceProcessor) VerifyInvoice(ctx context.Context, id string) (*VerificationResult, error) {
	invoice, err := p.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	computed, _, err := p.fingerprints.FingerprintInvoice(invoice.View())
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{
		InvoiceID: invoice.ID,
		Stored:    invoice.Fingerprint,
		Computed:  computed,
	}
	if invoice.Fingerprint != nil {
		result.Match = invoice.Fingerprint.Equal(computed)
	}
	return result, nil
}

// NotarizePending retries notarization for invoices stored without a
// receipt. It is an operator task and is never run by SubmitInvoice.
func (p *InvoiceProcessor) NotarizePending(ctx context.Context, limit int) (NotarizationSummary, error) {
	var summary NotarizationSummary

	invoices, err := p.invoiceRepo.ListPendingNotarization(ctx, limit)
	if err != nil {
		return summary, fmt.Errorf("list pending invoices: %w", err)
	}

	for _, invoice := range invoices {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		fingerprint, _, err := p.fingerprints.FingerprintInvoice(invoice.View())
		if err != nil {
			return summary, err
		}
		if invoice.Fingerprint != nil && !invoice.Fingerprint.Equal(fingerprint) {
			p.logger.WarnContext(ctx, "Stored fingerprint differs from recomputed one",
				slog.String("invoice_id", invoice.ID),
				slog.String("stored", invoice.Fingerprint.String()),
				slog.String("computed", fingerprint.String()))
		}

		summary.Attempted++
		receipt, err := p.notarize(ctx, invoice.ID, fingerprint)
		if err != nil {
			summary.Failed++
			continue
		}

		if err := p.invoiceRepo.UpdateIntegrity(ctx, invoice.ID, fingerprint, receipt); err != nil {
			return summary, fmt.Errorf("store receipt for %s: %w", invoice.ID, err)
		}
		if receipt.Confirmed {
			summary.Confirmed++
		} else {
			summary.Pending++
		}
	}

	p.logger.InfoContext(ctx, "Renotarization finished",
		slog.Int("attempted", summary.Attempted),
		slog.Int("confirmed", summary.Confirmed),
		slog.Int("pending", summary.Pending),
		slog.Int("failed", summary.Failed))

	return summary, nil
}

// IsFraudStatusUnknown reports whether err came from a failed fraud evaluation.
func IsFraudStatusUnknown(err error) bool {
	return errors.Is(err, ErrEvaluation)
}

type nopMetrics struct{}

func (nopMetrics) RecordVerdict(string)              {}
func (nopMetrics) RecordNotarization(string, string) {}
