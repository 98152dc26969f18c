package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/dispatch"
	"github.com/roach88/eventual2pc/internal/entity"
	"github.com/roach88/eventual2pc/internal/httpapi"
	"github.com/roach88/eventual2pc/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the dispatcher",
		Long: `Open the record log, start the single-writer dispatcher and serve the
HTTP API until interrupted.

Example:
  eventual2pc serve --db ./bank.db --listen :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	addDatabaseFlag(cmd, rootOpts)
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	logger, err := opts.logger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	domain := bank.NewDomain(cat)
	repo := entity.NewRepository(st, bank.NewRegistry(),
		entity.WithMaxAttempts(cfg.MaxAttempts),
		entity.WithLogger(logger))
	d := dispatch.New(repo, domain,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(dispatch.NewMetrics(reg)),
		dispatch.WithMaxSteps(cfg.MaxSteps))
	srv := httpapi.NewServer(d, domain, st,
		httpapi.WithLogger(logger),
		httpapi.WithGatherer(reg))

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatched := make(chan error, 1)
	go func() { dispatched <- d.Run(ctx) }()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (database %s). Press Ctrl-C to stop.\n", cfg.Listen, cfg.Database)
	serveErr := srv.Run(ctx, cfg.Listen)

	stop()
	runErr := <-dispatched
	if serveErr != nil {
		return WrapExitError(ExitFailure, "http server error", serveErr)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "dispatcher error", runErr)
	}
	if n := d.Pending(); n > 0 {
		logger.Warn("stopped with queued commands", "pending", n)
	}
	logger.Info("stopped gracefully")
	return nil
}
