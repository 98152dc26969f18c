package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eventual2pc/internal/httpapi"
	"github.com/roach88/eventual2pc/internal/store"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <type/id>",
		Short: "Print the records of one stream",
		Long: `Print the stored records of a stream in append order.

Examples:
  eventual2pc history account/alice
  eventual2pc history transfer/rent-march --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			stream, err := store.ParseStream(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid stream", err)
			}
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			entries, err := client.History(cmd.Context(), stream)
			if err != nil {
				return f.requestFailed("history", err)
			}
			return f.Success(historyOutput(entries))
		},
	}
	addServerFlag(cmd, rootOpts)
	return cmd
}

type historyOutput []httpapi.HistoryEntry

func (h historyOutput) String() string {
	lines := make([]string, 0, len(h))
	for _, e := range h {
		lines = append(lines, fmt.Sprintf("%4d  v%-3d %-36s %s", e.Seq, e.Version, e.Kind, e.Payload))
	}
	return strings.Join(lines, "\n")
}
