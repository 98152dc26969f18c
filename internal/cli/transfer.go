package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/httpapi"
)

// TransferOptions holds flags for the transfer command.
type TransferOptions struct {
	*RootOptions
	ID            string
	TransactionID string
	Wait          bool
	Timeout       time.Duration
	PollInterval  time.Duration
}

// NewTransferCommand creates the transfer command.
func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransferOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move money between two accounts",
		Long: `Start a transfer. The server answers as soon as the transfer is
recorded; the two accounts are settled by the dispatcher afterwards.

With --wait the command polls until the transfer commits or rolls back
and exits 1 on rollback.

Examples:
  eventual2pc transfer alice bob 30
  eventual2pc transfer alice bob 30 --id rent-march --wait`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "transfer id (default: the transaction id)")
	cmd.Flags().StringVar(&opts.TransactionID, "tx", "", "transaction id (default: generated)")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "wait for the transfer to finish")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "how long --wait waits")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll", 100*time.Millisecond, "poll interval for --wait")
	addServerFlag(cmd, rootOpts)

	return cmd
}

func runTransfer(opts *TransferOptions, cmd *cobra.Command, args []string) error {
	f := newFormatter(cmd, opts.RootOptions)

	amount, err := parseAmount(args[2])
	if err != nil {
		return err
	}
	client, err := opts.client()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	accepted, err := client.Transfer(ctx, httpapi.TransferRequest{
		ID:            opts.ID,
		TransactionID: opts.TransactionID,
		From:          args[0],
		To:            args[1],
		Amount:        amount,
	})
	if err != nil {
		return f.requestFailed("transfer", err)
	}
	f.VerboseLog("accepted %s as transaction %s", accepted.Stream, accepted.TransactionID)

	if !opts.Wait {
		return f.Success(acceptedOutput(*accepted))
	}

	id := opts.ID
	if id == "" {
		id = accepted.TransactionID
	}
	view, err := waitForTransfer(ctx, client, id, opts.Timeout, opts.PollInterval)
	if err != nil {
		return f.requestFailed("transfer status", err)
	}
	if outErr := f.Success(transferOutput(*view)); outErr != nil {
		return outErr
	}
	if view.Outcome != bank.OutcomeCommitted {
		return NewExitError(ExitFailure, fmt.Sprintf("transfer %s %s", view.ID, view.Outcome))
	}
	return nil
}

// waitForTransfer polls until the transfer leaves the pending state.
func waitForTransfer(ctx context.Context, client *httpapi.Client, id string, timeout, every time.Duration) (*bank.TransferView, error) {
	return waitForOutcome(ctx, "transfer "+id, timeout, every, func(ctx context.Context) (*bank.TransferView, bank.Outcome, error) {
		v, err := client.TransferStatus(ctx, id)
		if err != nil {
			return nil, bank.OutcomeNone, err
		}
		return v, v.Outcome, nil
	})
}

// waitForOutcome polls fetch until it reports committed or rolled back.
func waitForOutcome[V any](ctx context.Context, what string, timeout, every time.Duration, fetch func(context.Context) (V, bank.Outcome, error)) (V, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		view, outcome, err := fetch(ctx)
		if err != nil {
			return view, err
		}
		if outcome == bank.OutcomeCommitted || outcome == bank.OutcomeRolledBack {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, fmt.Errorf("%s still %s: %w", what, outcome, ctx.Err())
		case <-ticker.C:
		}
	}
}

func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid amount %q", s), err)
	}
	return n, nil
}

type acceptedOutput httpapi.Accepted

func (a acceptedOutput) String() string {
	return fmt.Sprintf("Accepted %s (transaction %s)", a.Stream, a.TransactionID)
}

type transferOutput bank.TransferView

func (t transferOutput) String() string {
	return fmt.Sprintf("Transfer %s: %s -> %s amount=%d %s", t.ID, t.From, t.To, t.Amount, t.Outcome)
}
