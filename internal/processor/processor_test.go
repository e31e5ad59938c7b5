package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/notary"
	"invoice_integrity/internal/repository/memory"
	"invoice_integrity/internal/repository/sqlite"
	"invoice_integrity/pkg/crypto"
)

type unreachableLedger struct{}

func (unreachableLedger) RegisterInvoice(context.Context, [32]byte) (string, error) {
	return "", errors.New("dial tcp 127.0.0.1:8545: connection refused")
}

func (unreachableLedger) WaitForInclusion(context.Context, string) (bool, error) {
	return false, errors.New("unreachable")
}

// stalledLedger broadcasts immediately but never sees the transaction mined.
type stalledLedger struct{}

func (stalledLedger) RegisterInvoice(context.Context, [32]byte) (string, error) {
	return "0xfeed", nil
}

func (stalledLedger) WaitForInclusion(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

// abandoningLedger cancels the submitting caller while the wait is in flight.
type abandoningLedger struct {
	cancel context.CancelFunc
}

func (abandoningLedger) RegisterInvoice(context.Context, [32]byte) (string, error) {
	return "0xbeef", nil
}

func (l abandoningLedger) WaitForInclusion(ctx context.Context, _ string) (bool, error) {
	l.cancel()
	<-ctx.Done()
	return false, ctx.Err()
}

type recordingNotifier struct {
	mu       sync.Mutex
	verdicts []domain.FraudVerdict
}

func (n *recordingNotifier) SendFraudAlert(_ context.Context, _ *domain.Invoice, verdict domain.FraudVerdict) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verdicts = append(n.verdicts, verdict)
	return nil
}

type testEnv struct {
	invoices *memory.InvoiceRepository
	alerts   *memory.FraudAlertRepository
	proc     *InvoiceProcessor
	notifier *recordingNotifier
}

func setup(t *testing.T, notarizer notary.Notarizer) *testEnv {
	t.Helper()

	invoices := memory.NewInvoiceRepository()
	alerts := memory.NewFraudAlertRepository()
	notifier := &recordingNotifier{}
	proc := NewInvoiceProcessor(
		invoices,
		alerts,
		NewFraudDetector(DefaultFraudConfig(), nil),
		crypto.NewFingerprintEngine(),
		notarizer,
		nil,
	).WithNotifier(notifier)

	return &testEnv{invoices: invoices, alerts: alerts, proc: proc, notifier: notifier}
}

func newTestInvoice(submitter, number, total string) *domain.Invoice {
	amount := domain.MustParseAmount(total)
	return domain.NewInvoice(submitter).
		WithClient("Acme Ltd", "billing@acme.test").
		WithItems(number, []domain.LineItem{{Description: "Consulting", Quantity: domain.NewAmount(1, 0), UnitPrice: amount}}, amount).
		WithDueDate(time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC))
}

func TestInvoiceProcessor_SubmitInvoice_Clean(t *testing.T) {
	ctx := context.Background()
	env := setup(t, notary.NewSimulated())

	result, err := env.proc.SubmitInvoice(ctx, newTestInvoice("u1", "1001", "250"))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict.Flagged || result.Alert != nil {
		t.Errorf("expected clean verdict, got %+v", result.Verdict)
	}
	stored, err := env.invoices.GetByID(ctx, result.Invoice.ID)
	if err != nil {
		t.Fatalf("expected invoice to be stored: %v", err)
	}
	if stored.Status != domain.StatusPending {
		t.Errorf("expected status pending, got %s", stored.Status)
	}
	if stored.Fingerprint == nil || !stored.Fingerprint.IsPrimary() {
		t.Errorf("expected primary fingerprint, got %+v", stored.Fingerprint)
	}
	if stored.Notarization == nil || !stored.Notarization.Confirmed || !strings.HasPrefix(stored.Notarization.TransactionRef, "SIM_") {
		t.Errorf("expected confirmed simulated receipt, got %+v", stored.Notarization)
	}
	if len(env.notifier.verdicts) != 0 {
		t.Errorf("expected no notifications, got %d", len(env.notifier.verdicts))
	}
}

func TestInvoiceProcessor_SubmitInvoice_DuplicateFlagged(t *testing.T) {
	ctx := context.Background()
	env := setup(t, notary.NewSimulated())

	if _, err := env.proc.SubmitInvoice(ctx, newTestInvoice("u1", "1001", "100")); err != nil {
		t.Fatalf("unexpected error on first submission: %v", err)
	}
	result, err := env.proc.SubmitInvoice(ctx, newTestInvoice("u1", "1001", "50"))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Verdict.Flagged || result.Verdict.Severity != domain.SeverityMedium {
		t.Errorf("expected medium verdict, got %+v", result.Verdict)
	}
	if result.Invoice.Status != domain.StatusFlagged {
		t.Errorf("expected status flagged, got %s", result.Invoice.Status)
	}
	alerts, _ := env.alerts.GetByInvoiceID(ctx, result.Invoice.ID)
	if len(alerts) != 1 || alerts[0].Reasons[0] != ReasonDuplicateNumber {
		t.Errorf("expected one duplicate alert, got %+v", alerts)
	}
	if len(env.notifier.verdicts) != 1 {
		t.Errorf("expected one notification, got %d", len(env.notifier.verdicts))
	}
}

func TestInvoiceProcessor_SubmitInvoice_NotarizationFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	env := setup(t, notary.NewLive(unreachableLedger{}, time.Second, nil))

	result, err := env.proc.SubmitInvoice(ctx, newTestInvoice("u1", "1001", "100"))

	if err != nil {
		t.Fatalf("expected submission to succeed, got %v", err)
	}
	if !errors.Is(result.NotarizationErr, notary.ErrNotarization) {
		t.Errorf("expected ErrNotarization in result, got %v", result.NotarizationErr)
	}
	stored, err := env.invoices.GetByID(ctx, result.Invoice.ID)
	if err != nil {
		t.Fatalf("expected invoice to be stored: %v", err)
	}
	if stored.Notarization != nil {
		t.Errorf("expected no receipt, got %+v", stored.Notarization)
	}
	if stored.Fingerprint == nil {
		t.Error("expected fingerprint to be stored even without receipt")
	}
	pending, _ := env.invoices.ListPendingNotarization(ctx, 10)
	if len(pending) != 1 || pending[0].ID != result.Invoice.ID {
		t.Errorf("expected invoice to be pending notarization, got %+v", pending)
	}
}

func TestInvoiceProcessor_SubmitInvoice_EvaluationFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	invoices := memory.NewInvoiceRepository()
	alerts := memory.NewFraudAlertRepository()
	proc := NewInvoiceProcessor(invoices, alerts, NewFraudDetector(DefaultFraudConfig(), nil), crypto.NewFingerprintEngine(), notary.NewSimulated(), nil)
	proc.invoiceRepo = brokenHistory{InvoiceRepository: invoices}

	inv := newTestInvoice("u1", "1001", "100")
	_, err := proc.SubmitInvoice(ctx, inv)

	if !errors.Is(err, ErrEvaluation) {
		t.Fatalf("expected ErrEvaluation, got %v", err)
	}
	if _, err := invoices.GetByID(ctx, inv.ID); err == nil {
		t.Error("expected invoice not to be stored when fraud status is unknown")
	}
}

type brokenHistory struct {
	*memory.InvoiceRepository
}

func (brokenHistory) ExistsByInvoiceNumber(context.Context, string, string) (bool, error) {
	return false, fmt.Errorf("connection reset")
}

func TestInvoiceProcessor_NotarizePending(t *testing.T) {
	ctx := context.Background()
	env := setup(t, notary.NewLive(unreachableLedger{}, time.Second, nil))

	for i := 0; i < 3; i++ {
		if _, err := env.proc.SubmitInvoice(ctx, newTestInvoice("u1", fmt.Sprintf("%d", i), "100")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	failing, err := env.proc.NotarizePending(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failing.Attempted != 3 || failing.Failed != 3 {
		t.Errorf("expected 3 failed attempts, got %+v", failing)
	}

	env.proc.notarizer = notary.NewSimulated()
	summary, err := env.proc.NotarizePending(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Attempted != 2 || summary.Confirmed != 2 {
		t.Errorf("expected 2 confirmed, got %+v", summary)
	}
	pending, _ := env.invoices.ListPendingNotarization(ctx, 0)
	if len(pending) != 1 {
		t.Errorf("expected 1 invoice still pending, got %d", len(pending))
	}
}

func TestInvoiceProcessor_VerifyInvoice(t *testing.T) {
	ctx := context.Background()
	env := setup(t, notary.NewSimulated())

	result, err := env.proc.SubmitInvoice(ctx, newTestInvoice("u1", "1001", "100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	verification, err := env.proc.VerifyInvoice(ctx, result.Invoice.ID)
	if err != nil {
		t.Fatalf("unexpected error on VerifyInvoice: %v", err)
	}
	if !verification.Match {
		t.Errorf("expected stored fingerprint to match, got %+v", verification)
	}

	forged := domain.NewFingerprint(domain.FingerprintFallback, make([]byte, 32))
	_ = env.invoices.UpdateIntegrity(ctx, result.Invoice.ID, forged, nil)
	verification, _ = env.proc.VerifyInvoice(ctx, result.Invoice.ID)
	if verification.Match {
		t.Error("expected forged fingerprint not to match")
	}
}

func TestInvoiceProcessor_ResolveAlert(t *testing.T) {
	ctx := context.Background()
	env := setup(t, notary.NewSimulated())

	result, err := env.proc.SubmitInvoice(ctx, newTestInvoice("u1", "1", "1000000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Alert == nil {
		t.Fatal("expected alert for invoice above threshold")
	}

	if err := env.proc.ResolveAlert(ctx, result.Alert.ID); err != nil {
		t.Fatalf("unexpected error on ResolveAlert: %v", err)
	}
	_, alerts, err := env.proc.GetInvoice(ctx, result.Invoice.ID)
	if err != nil {
		t.Fatalf("unexpected error on GetInvoice: %v", err)
	}
	if len(alerts) != 1 || !alerts[0].Resolved {
		t.Errorf("expected resolved alert, got %+v", alerts)
	}
}

type sqliteEnv struct {
	store    *sqlite.Store
	proc     *InvoiceProcessor
	notifier *recordingNotifier
}

func setupSQLite(t *testing.T, notarizer notary.Notarizer) *sqliteEnv {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "invoices.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	notifier := &recordingNotifier{}
	proc := NewInvoiceProcessor(
		store.Invoices(),
		store.Alerts(),
		NewFraudDetector(DefaultFraudConfig(), nil),
		crypto.NewFingerprintEngine(),
		notarizer,
		nil,
	).WithNotifier(notifier)

	return &sqliteEnv{store: store, proc: proc, notifier: notifier}
}

func TestInvoiceProcessor_SubmitInvoice_LedgerOutlivesCallerDeadline(t *testing.T) {
	env := setupSQLite(t, notary.NewLive(stalledLedger{}, time.Hour, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	result, err := env.proc.SubmitInvoice(ctx, newTestInvoice("u1", "1001", "1000000"))

	if err != nil {
		t.Fatalf("expected submission to succeed, got %v", err)
	}
	if !result.Verdict.Flagged || result.Alert == nil {
		t.Fatalf("expected flagged verdict with alert, got %+v", result.Verdict)
	}

	stored, err := env.store.Invoices().GetByID(context.Background(), result.Invoice.ID)
	if err != nil {
		t.Fatalf("expected invoice to be stored: %v", err)
	}
	if stored.Fingerprint == nil {
		t.Error("expected fingerprint to be stored")
	}
	if stored.Notarization != nil && stored.Notarization.Confirmed {
		t.Errorf("expected unconfirmed or absent receipt, got %+v", stored.Notarization)
	}
	alerts, err := env.store.Alerts().GetByInvoiceID(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("load alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("expected one stored alert, got %d", len(alerts))
	}
	if len(env.notifier.verdicts) != 1 {
		t.Errorf("expected one notification, got %d", len(env.notifier.verdicts))
	}
}

func TestInvoiceProcessor_SubmitInvoice_CallerCancelsDuringLedgerWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := setupSQLite(t, notary.NewLive(abandoningLedger{cancel: cancel}, time.Hour, nil))

	result, err := env.proc.SubmitInvoice(ctx, newTestInvoice("u1", "1001", "1000000"))

	if err != nil {
		t.Fatalf("expected submission to succeed, got %v", err)
	}
	if !errors.Is(result.NotarizationErr, notary.ErrNotarization) {
		t.Errorf("expected ErrNotarization in result, got %v", result.NotarizationErr)
	}

	stored, err := env.store.Invoices().GetByID(context.Background(), result.Invoice.ID)
	if err != nil {
		t.Fatalf("expected invoice to be stored: %v", err)
	}
	if stored.Fingerprint == nil || stored.Notarization != nil {
		t.Errorf("expected fingerprint without receipt, got fingerprint=%v receipt=%+v", stored.Fingerprint, stored.Notarization)
	}
	alerts, _ := env.store.Alerts().GetByInvoiceID(context.Background(), stored.ID)
	if len(alerts) != 1 {
		t.Errorf("expected one stored alert, got %d", len(alerts))
	}
}
