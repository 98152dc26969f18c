package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/httpapi"
)

// NewAccountCommand creates the account command group.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Open, inspect and freeze accounts",
	}
	cmd.AddCommand(newAccountOpenCommand(rootOpts))
	cmd.AddCommand(newAccountShowCommand(rootOpts))
	cmd.AddCommand(newAccountFreezeCommand(rootOpts))
	return cmd
}

func newAccountOpenCommand(rootOpts *RootOptions) *cobra.Command {
	var owner string
	var balance int64

	cmd := &cobra.Command{
		Use:   "open <id>",
		Short: "Open an account",
		Long: `Open an account with an opening balance.

Example:
  eventual2pc account open alice --balance 100 --owner "Alice"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			view, err := client.OpenAccount(cmd.Context(), httpapi.OpenAccountRequest{
				ID:      args[0],
				Owner:   owner,
				Balance: balance,
			})
			if err != nil {
				return f.requestFailed("open account", err)
			}
			return f.Success(accountOutput(*view))
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "account owner")
	cmd.Flags().Int64Var(&balance, "balance", 0, "opening balance")
	addServerFlag(cmd, rootOpts)
	return cmd
}

func newAccountShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show <id>",
		Short:         "Show an account's balance and transaction state",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			view, err := client.Account(cmd.Context(), args[0])
			if err != nil {
				return f.requestFailed("show account", err)
			}
			return f.Success(accountOutput(*view))
		},
	}
	addServerFlag(cmd, rootOpts)
	return cmd
}

func newAccountFreezeCommand(rootOpts *RootOptions) *cobra.Command {
	var id, txID string
	var wait bool
	var timeout, poll time.Duration

	cmd := &cobra.Command{
		Use:   "freeze <account>",
		Short: "Freeze an account",
		Long: `Start a freeze. The freeze commits only if nothing else is staged on
the account; afterwards the account refuses every transfer and collect.

With --wait the command polls until the freeze commits or rolls back
and exits 1 on rollback.

Example:
  eventual2pc account freeze alice --id audit-7 --wait`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			accepted, err := client.Freeze(ctx, args[0], httpapi.FreezeRequest{ID: id, TransactionID: txID})
			if err != nil {
				return f.requestFailed("freeze", err)
			}
			f.VerboseLog("accepted %s as transaction %s", accepted.Stream, accepted.TransactionID)
			if !wait {
				return f.Success(acceptedOutput(*accepted))
			}

			freezeID := id
			if freezeID == "" {
				freezeID = accepted.TransactionID
			}
			view, err := waitForOutcome(ctx, "freeze "+freezeID, timeout, poll, func(ctx context.Context) (*bank.FreezeView, bank.Outcome, error) {
				v, err := client.FreezeStatus(ctx, freezeID)
				if err != nil {
					return nil, bank.OutcomeNone, err
				}
				return v, v.Outcome, nil
			})
			if err != nil {
				return f.requestFailed("freeze status", err)
			}
			if outErr := f.Success(freezeOutput(*view)); outErr != nil {
				return outErr
			}
			if view.Outcome != bank.OutcomeCommitted {
				return NewExitError(ExitFailure, fmt.Sprintf("freeze %s %s", view.ID, view.Outcome))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "freeze id (default: the transaction id)")
	cmd.Flags().StringVar(&txID, "tx", "", "transaction id (default: generated)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the freeze to finish")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long --wait waits")
	cmd.Flags().DurationVar(&poll, "poll", 100*time.Millisecond, "poll interval for --wait")
	addServerFlag(cmd, rootOpts)
	return cmd
}

type freezeOutput bank.FreezeView

func (f freezeOutput) String() string {
	return fmt.Sprintf("Freeze %s of %s: %s", f.ID, f.Account, f.Outcome)
}

// accountOutput renders an account for text output.
type accountOutput bank.AccountView

func (a accountOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Account %s", a.ID)
	if a.Owner != "" {
		fmt.Fprintf(&b, " (%s)", a.Owner)
	}
	fmt.Fprintf(&b, "\n  balance:   %d\n  available: %d\n  phase:     %s", a.Balance, a.Available, a.Phase)
	if a.TransactionID != "" {
		fmt.Fprintf(&b, " (%s)", a.TransactionID)
	}
	if a.Frozen {
		b.WriteString("\n  frozen")
	}
	for _, p := range a.Staged {
		fmt.Fprintf(&b, "\n  staged:    %s for %s", p.Kind, p.TransactionID)
		if amount, ok := p.Args.Int("amount"); ok {
			fmt.Fprintf(&b, " amount=%d", amount)
		}
	}
	return b.String()
}
