package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "verify <invoice-id>",
		Short:         "Recompute a stored invoice's fingerprint and compare it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.processor.VerifyInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if err := writeOutput(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) {
				stored := "none"
				if result.Stored != nil {
					stored = result.Stored.String()
				}
				fmt.Fprintf(w, "stored:   %s\ncomputed: %s\nmatch:    %t\n", stored, result.Computed, result.Match)
			}); err != nil {
				return err
			}

			if !result.Match {
				return fmt.Errorf("invoice %s: fingerprint mismatch", result.InvoiceID)
			}
			return nil
		},
	}
}
