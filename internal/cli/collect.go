package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/eventual2pc/internal/httpapi"
)

// NewCollectCommand creates the collect command.
func NewCollectCommand(rootOpts *RootOptions) *cobra.Command {
	var txID string

	cmd := &cobra.Command{
		Use:   "collect <account> <amount> <source>...",
		Short: "Collect the same amount from several accounts",
		Long: `Start a collect: every source pays amount into account, or nobody does.

Example:
  eventual2pc collect alice 5 bob carol`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			accepted, err := client.Collect(cmd.Context(), args[0], httpapi.CollectRequest{
				TransactionID: txID,
				Sources:       args[2:],
				Amount:        amount,
			})
			if err != nil {
				return f.requestFailed("collect", err)
			}
			return f.Success(acceptedOutput(*accepted))
		},
	}

	cmd.Flags().StringVar(&txID, "tx", "", "transaction id (default: generated)")
	addServerFlag(cmd, rootOpts)
	return cmd
}
