package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/eventual2pc/internal/catalog"
	"github.com/roach88/eventual2pc/internal/config"
	"github.com/roach88/eventual2pc/internal/httpapi"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Overrides set by per-command flags. Empty keeps the configured value.
	Database string
	Server   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "eventual2pc",
		Short: "Eventual two-phase commit between event-sourced accounts",
		Long: `Run and drive a bank whose transfers and collects are coordinated by an
eventually consistent two-phase commit.

Configuration is read from --config (YAML), then .env, then E2PC_*
environment variables; command flags win over all of them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAccountCommand(opts))
	cmd.AddCommand(NewTransferCommand(opts))
	cmd.AddCommand(NewCollectCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig resolves the configuration and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.Options{File: o.ConfigFile, DotEnv: ".env"})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Server != "" {
		cfg.Server = o.Server
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func (o *RootOptions) logger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := config.NewLogger(cfg.Log, w)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log settings", err)
	}
	return logger, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func addDatabaseFlag(cmd *cobra.Command, opts *RootOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
}

func addServerFlag(cmd *cobra.Command, opts *RootOptions) {
	cmd.Flags().StringVar(&opts.Server, "server", "", "server base URL (default from config)")
}

func (o *RootOptions) client() (*httpapi.Client, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return httpapi.NewClient(cfg.Server), nil
}
