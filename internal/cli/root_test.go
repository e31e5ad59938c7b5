package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/processor"
	"invoice_integrity/internal/repository/sqlite"
	"invoice_integrity/pkg/crypto"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "invoiced", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "fingerprint", "renotarize", "verify"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "fingerprint"})
	cmd.SetIn(strings.NewReader("{}"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func testInvoice() *domain.Invoice {
	total := domain.MustParseAmount("420.00")
	return domain.NewInvoice("u1").
		WithClient("Acme Ltd", "billing@acme.test").
		WithItems("INV-42", []domain.LineItem{{
			Description: "Support",
			Quantity:    domain.NewAmount(1, 0),
			UnitPrice:   total,
		}}, total).
		WithDueDate(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
}

func TestFingerprintCommand(t *testing.T) {
	inv := testInvoice()
	input, err := json.Marshal(inv)
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "json", "fingerprint"})
	cmd.SetIn(bytes.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	var result FingerprintResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))

	want, canonical, err := crypto.NewFingerprintEngine().FingerprintInvoice(inv.View())
	require.NoError(t, err)
	assert.Equal(t, inv.ID, result.InvoiceID)
	assert.True(t, want.Equal(result.Fingerprint))
	assert.Equal(t, string(canonical), result.Canonical)
	assert.Equal(t, string(domain.FingerprintPrimary), result.Algorithm)
}

func TestFingerprintCommandText(t *testing.T) {
	input, err := json.Marshal(testInvoice())
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"fingerprint", "-"})
	cmd.SetIn(bytes.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `{"client_email":"billing@acme.test"`))
	assert.True(t, strings.HasPrefix(lines[1], "0x"))
}

func TestFingerprintCommandRejectsBadInput(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"fingerprint"})
	cmd.SetIn(strings.NewReader("not json"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	assert.Error(t, cmd.Execute())
}

func TestRenotarizeAndVerify(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "invoices.db")
	t.Setenv("USE_SIMULATED_CHAIN", "true")
	t.Setenv("INVOICE_STORAGE_DRIVER", "sqlite")
	t.Setenv("INVOICE_STORAGE_PATH", dbPath)

	store, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	inv := testInvoice()
	require.NoError(t, store.Invoices().Create(context.Background(), inv))
	require.NoError(t, store.Close())

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewRootCommand()
		cmd.SetArgs(append([]string{"--env-file", filepath.Join(dir, "missing.env"), "--format", "json"}, args...))
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		err := cmd.Execute()
		return out.String(), err
	}

	_, err = run("verify", inv.ID)
	require.Error(t, err, "an invoice without a stored fingerprint must not verify")

	out, err := run("renotarize")
	require.NoError(t, err)
	var summary processor.NotarizationSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, processor.NotarizationSummary{Attempted: 1, Confirmed: 1}, summary)

	out, err = run("verify", inv.ID)
	require.NoError(t, err)
	var verification processor.VerificationResult
	require.NoError(t, json.Unmarshal([]byte(out), &verification))
	assert.True(t, verification.Match)

	out, err = run("renotarize")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 0, summary.Attempted)
}

func TestRenotarizeLogsEngineReadyOnce(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "invoices.db")
	t.Setenv("USE_SIMULATED_CHAIN", "true")
	t.Setenv("INVOICE_STORAGE_DRIVER", "sqlite")
	t.Setenv("INVOICE_STORAGE_PATH", dbPath)
	t.Setenv("INVOICE_LOG_LEVEL", "info")

	store, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Invoices().Create(context.Background(), testInvoice()))
	require.NoError(t, store.Close())

	var logs bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--env-file", filepath.Join(dir, "missing.env"), "renotarize"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&logs)
	require.NoError(t, cmd.Execute())

	assert.Equal(t, 1, strings.Count(logs.String(), "Fingerprint engine ready"))
}
