package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"invoice_integrity/internal/domain"
	"invoice_integrity/pkg/crypto"
)

// FingerprintResult is the output of the fingerprint command.
type FingerprintResult struct {
	InvoiceID   string             `json:"invoice_id"`
	Algorithm   string             `json:"algorithm"`
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	Canonical   string             `json:"canonical"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint [invoice.json]",
		Short: "Print the canonical form and fingerprint of an invoice",
		Long: `Reads a stored invoice as JSON (from a file or stdin) and prints its
canonical serialization and fingerprint. Nothing is written or notarized.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open invoice: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runFingerprint(rootOpts, in, cmd)
		},
	}

	return cmd
}

func runFingerprint(opts *RootOptions, in io.Reader, cmd *cobra.Command) error {
	var invoice domain.Invoice
	if err := json.NewDecoder(in).Decode(&invoice); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}

	logger := setupLogger(slog.LevelWarn, cmd.ErrOrStderr())
	engine := crypto.NewFingerprintEngine(crypto.WithLogger(logger))

	fingerprint, canonical, err := engine.FingerprintInvoice(invoice.View())
	if err != nil {
		return err
	}

	result := FingerprintResult{
		InvoiceID:   invoice.ID,
		Algorithm:   string(fingerprint.Algorithm),
		Fingerprint: fingerprint,
		Canonical:   string(canonical),
	}

	return writeOutput(cmd.OutOrStdout(), opts.Format, result, func(w io.Writer) {
		fmt.Fprintln(w, result.Canonical)
		fmt.Fprintln(w, fingerprint.String())
	})
}

// writeOutput renders v as indented JSON, or through text for the text format.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
