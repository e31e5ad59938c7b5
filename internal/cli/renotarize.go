package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type renotarizeOptions struct {
	limit int
}

// NewRenotarizeCommand creates the renotarize command. It is meant to be run
// by an operator or a scheduler, never by the submission path.
func NewRenotarizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &renotarizeOptions{}

	cmd := &cobra.Command{
		Use:   "renotarize",
		Short: "Retry notarization for invoices stored without a receipt",
		Long: `Recomputes the fingerprint of every invoice that has no notarization
receipt and submits it to the configured notarizer. Invoices that fail again
stay pending for the next run.`,
		Args:          cobra.NoArgs,
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

			summary, err := a.processor.NotarizePending(cmd.Context(), opts.limit)
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, summary, func(w io.Writer) {
				fmt.Fprintf(w, "attempted: %d\nconfirmed: %d\npending:   %d\nfailed:    %d\n",
					summary.Attempted, summary.Confirmed, summary.Pending, summary.Failed)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 100, "maximum number of invoices to retry (0 for all)")

	return cmd
}
