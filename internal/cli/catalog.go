package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eventual2pc/internal/catalog"
)

// CatalogOutput lists the transaction and preparation kinds in use.
type CatalogOutput struct {
	Transactions []catalog.TransactionKind `json:"transactions"`
	Preparations []catalog.PreparationKind `json:"preparations"`
}

func (c CatalogOutput) String() string {
	var b strings.Builder
	b.WriteString("Transactions:")
	for _, t := range c.Transactions {
		fmt.Fprintf(&b, "\n  %-10s tag=%d  prepares %s", t.Name, t.Tag, joinKinds(t.Preparations))
	}
	b.WriteString("\nPreparations:")
	for _, p := range c.Preparations {
		fmt.Fprintf(&b, "\n  %-10s excludes %s", p.Name, joinKinds(p.Excludes))
	}
	return b.String()
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the transaction catalog",
		Long: `Load and validate a transaction catalog and print it. Without --file
the catalog from the configuration (or the built-in one) is used.

Examples:
  eventual2pc catalog
  eventual2pc catalog --file ./catalog.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			path := file
			if path == "" {
				cfg, err := rootOpts.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Catalog
			}
			cat, err := loadCatalog(path)
			if err != nil {
				if outErr := f.Error("E_CATALOG", err.Error(), nil); outErr != nil {
					return outErr
				}
				return WrapExitError(ExitFailure, "invalid catalog", err)
			}
			return f.Success(CatalogOutput{
				Transactions: cat.Transactions(),
				Preparations: cat.Preparations(),
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "CUE catalog file")
	return cmd
}

func joinKinds[K ~string](kinds []K) string {
	if len(kinds) == 0 {
		return "-"
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
