package processor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/repository/memory"
)

type scenarioFile struct {
	Scenarios []fraudScenario `yaml:"scenarios"`
}

type fraudScenario struct {
	Name      string           `yaml:"name"`
	History   []scenarioRecord `yaml:"history"`
	Candidate scenarioRecord   `yaml:"candidate"`
	Want      struct {
		Flagged  bool     `yaml:"flagged"`
		Severity string   `yaml:"severity"`
		Reasons  []string `yaml:"reasons"`
	} `yaml:"want"`
}

type scenarioRecord struct {
	Submitter string `yaml:"submitter"`
	Number    string `yaml:"number"`
	Total     string `yaml:"total"`
	Contact   string `yaml:"contact"`
}

func (r scenarioRecord) invoice() *domain.Invoice {
	total := domain.MustParseAmount(r.Total)
	return domain.NewInvoice(r.Submitter).
		WithClient("Client", r.Contact).
		WithItems(r.Number, []domain.LineItem{{Description: "work", Quantity: domain.NewAmount(1, 0), UnitPrice: total}}, total).
		WithDueDate(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
}

func loadScenarios(t *testing.T) []fraudScenario {
	t.Helper()

	data, err := os.ReadFile("testdata/fraud_scenarios.yaml")
	require.NoError(t, err)

	var file scenarioFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	require.NoError(t, decoder.Decode(&file))
	require.NotEmpty(t, file.Scenarios)
	return file.Scenarios
}

func TestFraudDetectorScenarios(t *testing.T) {
	for _, sc := range loadScenarios(t) {
		t.Run(sc.Name, func(t *testing.T) {
			ctx := context.Background()
			repo := memory.NewInvoiceRepository()
			for _, rec := range sc.History {
				require.NoError(t, repo.Create(ctx, rec.invoice()))
			}

			fd := NewFraudDetector(DefaultFraudConfig(), nil)
			candidate := sc.Candidate.invoice()

			verdict, err := fd.Evaluate(ctx, repo, candidate.SubmitterID, candidate.View())
			require.NoError(t, err)

			assert.Equal(t, sc.Want.Flagged, verdict.Flagged)
			assert.Equal(t, domain.Severity(sc.Want.Severity), verdict.Severity)
			assert.Equal(t, sc.Want.Reasons, verdict.Reasons)
		})
	}
}

func TestFraudDetectorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	prior := scenarioRecord{Submitter: "S", Number: "1001", Total: "200", Contact: "a@client.test"}
	require.NoError(t, repo.Create(ctx, prior.invoice()))

	fd := NewFraudDetector(DefaultFraudConfig(), nil)
	candidate := scenarioRecord{Submitter: "S", Number: "1001", Total: "1500", Contact: "a@client.test"}.invoice()

	first, err := fd.Evaluate(ctx, repo, "S", candidate.View())
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		again, err := fd.Evaluate(ctx, repo, "S", candidate.View())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	count, err := repo.CountByClientContact(ctx, "a@client.test")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "evaluation must not write")
}

func TestFraudDetectorCustomThreshold(t *testing.T) {
	cfg := DefaultFraudConfig()
	cfg.Threshold = domain.MustParseAmount("500")
	fd := NewFraudDetector(cfg, nil)

	candidate := scenarioRecord{Submitter: "S", Number: "1", Total: "500.01", Contact: "a@client.test"}.invoice()
	verdict, err := fd.Evaluate(context.Background(), memory.NewInvoiceRepository(), "S", candidate.View())
	require.NoError(t, err)

	assert.Equal(t, []string{ReasonAbsoluteLimit}, verdict.Reasons)
}

type failingQuery struct {
	*memory.InvoiceRepository
	err error
}

func (q failingQuery) AverageTotal(context.Context, string) (domain.Amount, error) {
	return domain.Amount{}, q.err
}

func TestFraudDetectorFailsClosed(t *testing.T) {
	storageErr := errors.New("database is locked")
	query := failingQuery{InvoiceRepository: memory.NewInvoiceRepository(), err: storageErr}
	fd := NewFraudDetector(DefaultFraudConfig(), nil)

	candidate := scenarioRecord{Submitter: "S", Number: "1", Total: "1000000", Contact: "a@client.test"}.invoice()
	verdict, err := fd.Evaluate(context.Background(), query, "S", candidate.View())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEvaluation)
	assert.ErrorIs(t, err, storageErr)
	assert.True(t, IsFraudStatusUnknown(err))
	assert.Empty(t, verdict.Reasons)
	assert.False(t, verdict.Flagged)
}

func TestFraudDetectorPatternOrder(t *testing.T) {
	fd := NewFraudDetector(DefaultFraudConfig(), nil)

	var names []string
	for _, p := range fd.Patterns() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"duplicate_number", "absolute_threshold", "average_multiple", "shared_contact"}, names)
}
