package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/repository"
)

// ErrEvaluation means the fraud status of a submission is unknown because
// historical data could not be read. Callers must not treat it as clean.
var ErrEvaluation = errors.New("fraud evaluation failed")

const (
	ReasonDuplicateNumber = "Duplicate invoice number for this user"
	ReasonAbsoluteLimit   = "Invoice total exceeds absolute threshold"
	ReasonAverageMultiple = "Invoice total exceeds 5x the user's average"
	ReasonSharedContact   = "Client contact shared across too many invoices"
)

type FraudConfig struct {
	Threshold          domain.Amount
	AverageMultiplier  int64
	ContactFanOutLimit int
}

func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		Threshold:          domain.NewAmount(100000, 0),
		AverageMultiplier:  5,
		ContactFanOutLimit: 5,
	}
}

type FraudDetector struct {
	patterns []FraudPattern
	logger   *slog.Logger
}

// FraudPattern is one screening rule. Description doubles as the reason code
// recorded when the rule fires.
type FraudPattern struct {
	Name        string
	Description string
	Detect      func(ctx context.Context, query repository.HistoricalInvoiceQuery, submitterID string, view domain.InvoiceView) (bool, error)
}

func NewFraudDetector(cfg FraudConfig, logger *slog.Logger) *FraudDetector {
	if logger == nil {
		logger = slog.Default()
	}

	fd := &FraudDetector{logger: logger}
	fd.patterns = []FraudPattern{
		{
			Name:        "duplicate_number",
			Description: ReasonDuplicateNumber,
			Detect:      detectDuplicateNumber,
		},
		{
			Name:        "absolute_threshold",
			Description: ReasonAbsoluteLimit,
			Detect: func(_ context.Context, _ repository.HistoricalInvoiceQuery, _ string, view domain.InvoiceView) (bool, error) {
				return view.Total.Cmp(cfg.Threshold) > 0, nil
			},
		},
		{
			Name:        "average_multiple",
			Description: ReasonAverageMultiple,
			Detect:      averageMultipleDetector(cfg.AverageMultiplier),
		},
		{
			Name:        "shared_contact",
			Description: ReasonSharedContact,
			Detect:      sharedContactDetector(cfg.ContactFanOutLimit),
		},
	}
	return fd
}

// Evaluate runs every rule against the submitter's history. Rules read
// concurrently but reasons are always reported in rule order. Any read failure
// discards the partial results.
func (fd *FraudDetector) Evaluate(ctx context.Context, query repository.HistoricalInvoiceQuery, submitterID string, view domain.InvoiceView) (domain.FraudVerdict, error) {
	fired := make([]bool, len(fd.patterns))

	g, gctx := errgroup.WithContext(ctx)
	for i, pattern := range fd.patterns {
		g.Go(func() error {
			detected, err := pattern.Detect(gctx, query, submitterID, view)
			if err != nil {
				return fmt.Errorf("%w: rule %s: %w", ErrEvaluation, pattern.Name, err)
			}
			fired[i] = detected
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fd.logger.ErrorContext(ctx, "Fraud evaluation failed",
			slog.String("invoice_id", view.ID),
			slog.String("submitter_id", submitterID),
			slog.String("error", err.Error()))
		return domain.FraudVerdict{}, err
	}

	reasons := make([]string, 0, len(fd.patterns))
	for i, pattern := range fd.patterns {
		if fired[i] {
			reasons = append(reasons, pattern.Description)
		}
	}

	verdict := domain.NewFraudVerdict(reasons)
	if verdict.Flagged {
		fd.logger.WarnContext(ctx, "Invoice flagged",
			slog.String("invoice_id", view.ID),
			slog.String("severity", string(verdict.Severity)),
			slog.Any("reasons", verdict.Reasons))
	}
	return verdict, nil
}

func (fd *FraudDetector) Patterns() []FraudPattern {
	return append([]FraudPattern(nil), fd.patterns...)
}

func detectDuplicateNumber(ctx context.Context, query repository.HistoricalInvoiceQuery, submitterID string, view domain.InvoiceView) (bool, error) {
	return query.ExistsByInvoiceNumber(ctx, submitterID, view.InvoiceNumber)
}

func averageMultipleDetector(multiplier int64) func(context.Context, repository.HistoricalInvoiceQuery, string, domain.InvoiceView) (bool, error) {
	return func(ctx context.Context, query repository.HistoricalInvoiceQuery, submitterID string, view domain.InvoiceView) (bool, error) {
		avg, err := query.AverageTotal(ctx, submitterID)
		if err != nil {
			return false, err
		}
		if avg.IsZero() {
			return false, nil
		}

		limit, err := avg.MulInt(multiplier)
		if err != nil {
			return false, err
		}
		return view.Total.Cmp(limit) > 0, nil
	}
}

func sharedContactDetector(limit int) func(context.Context, repository.HistoricalInvoiceQuery, string, domain.InvoiceView) (bool, error) {
	return func(ctx context.Context, query repository.HistoricalInvoiceQuery, _ string, view domain.InvoiceView) (bool, error) {
		count, err := query.CountByClientContact(ctx, view.ClientEmail)
		if err != nil {
			return false, err
		}
		return count > limit, nil
	}
}
