package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/codec"
	"github.com/roach88/eventual2pc/internal/store"
)

// ReplayStreamResult holds the replay result for a single stream.
type ReplayStreamResult struct {
	Stream  string `json:"stream"`
	Records int    `json:"records"`
	Version int64  `json:"version"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Streams      []ReplayStreamResult `json:"streams"`
	TotalStreams int                  `json:"total_streams"`
	TotalRecords int                  `json:"total_records"`
	Kinds        map[string]int64     `json:"kinds"`
	AllValid     bool                 `json:"all_valid"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Verify the record log by folding every stream",
		Long: `Read the whole record log, check every record's hash and canonical
form, check that stream versions have no gaps, and fold each stream into
its entity.

Exit codes:
  0 - Every stream replayed cleanly
  1 - At least one stream is corrupt
  2 - Command error (database not found, etc.)

Examples:
  eventual2pc replay --db ./bank.db
  eventual2pc replay --db ./bank.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd)
		},
	}
	addDatabaseFlag(cmd, rootOpts)
	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	streams, err := st.ListStreams(ctx, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list streams", err)
	}
	if len(streams) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, ReplayResult{Streams: []ReplayStreamResult{}, Kinds: map[string]int64{}, AllValid: true})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No records found in database.")
		return nil
	}

	domain := bank.NewDomain(cat)
	registry := bank.NewRegistry()

	result := ReplayResult{
		Streams:      make([]ReplayStreamResult, 0, len(streams)),
		TotalStreams: len(streams),
		AllValid:     true,
	}
	for _, stream := range streams {
		records, err := st.Load(ctx, stream)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", stream), err)
		}
		sr := replayStream(domain, registry, stream, records)
		if !sr.OK {
			result.AllValid = false
		}
		result.TotalRecords += len(records)
		result.Streams = append(result.Streams, sr)
	}

	counts, err := st.CountByKind(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count records", err)
	}
	result.Kinds = make(map[string]int64, len(counts))
	for kind, n := range counts {
		result.Kinds[string(kind)] = n
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replayStream verifies and folds one stream's records.
func replayStream(domain *bank.Domain, registry *codec.Registry, stream store.Stream, records []store.StoredRecord) ReplayStreamResult {
	sr := ReplayStreamResult{Stream: stream.String(), Records: len(records)}
	fail := func(format string, args ...any) ReplayStreamResult {
		sr.Error = fmt.Sprintf(format, args...)
		return sr
	}

	e, err := domain.NewEntity(stream)
	if err != nil {
		return fail("%v", err)
	}
	for i, rec := range records {
		if want := int64(i + 1); rec.Version != want {
			return fail("seq %d: version %d, expected %d", rec.Seq, rec.Version, want)
		}
		if err := codec.Verify(rec.Envelope); err != nil {
			return fail("seq %d: %v", rec.Seq, err)
		}
		decoded, err := registry.Decode(rec.Envelope.Kind, rec.Envelope.Payload)
		if err != nil {
			return fail("seq %d: %v", rec.Seq, err)
		}
		if err := e.Apply(decoded); err != nil {
			return fail("seq %d: apply %s: %v", rec.Seq, rec.Envelope.Kind, err)
		}
		sr.Version = rec.Version
	}
	sr.OK = true
	return sr
}

func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.AllValid {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_CORRUPT_LOG",
			Message: "replay verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	if !result.AllValid {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d stream(s), %d record(s)\n\n", result.TotalStreams, result.TotalRecords)
	for _, s := range result.Streams {
		if s.OK {
			if verbose {
				fmt.Fprintf(w, "✓ %s (version %d)\n", s.Stream, s.Version)
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n  %s\n", s.Stream, s.Error)
	}

	if verbose {
		fmt.Fprintln(w)
		kinds := make([]string, 0, len(result.Kinds))
		for k := range result.Kinds {
			kinds = append(kinds, k)
		}
		slices.Sort(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-36s %d\n", k, result.Kinds[k])
		}
	}

	if result.AllValid {
		fmt.Fprintln(w, "✓ All streams replayed cleanly")
		return nil
	}
	fmt.Fprintln(w, "✗ Replay verification failed")
	return NewExitError(ExitFailure, "replay verification failed")
}
