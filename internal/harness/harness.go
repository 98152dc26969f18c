package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/catalog"
	"github.com/roach88/eventual2pc/internal/dispatch"
	"github.com/roach88/eventual2pc/internal/entity"
	"github.com/roach88/eventual2pc/internal/ir"
	"github.com/roach88/eventual2pc/internal/saga"
	"github.com/roach88/eventual2pc/internal/store"
)

// Harness executes one scenario.
type Harness struct {
	store      *store.Store
	domain     *bank.Domain
	dispatcher *dispatch.Dispatcher
	trace      *dispatch.Recorder
}

// Option configures a run.
type Option func(*options)

type options struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// WithCatalog runs against cat instead of the built-in catalog.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(o *options) { o.catalog = cat }
}

// WithLogger receives the dispatcher's logs, which are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run executes scenario in a fresh in-memory store.
//
// An error means the scenario could not be run at all (bad catalog, setup
// failure). Mismatches are reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil {
		cat, err := catalog.Default()
		if err != nil {
			return nil, err
		}
		o.catalog = cat
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		domain: bank.NewDomain(o.catalog),
		trace:  &dispatch.Recorder{},
	}
	dopts := []dispatch.Option{
		dispatch.WithLogger(o.logger),
		dispatch.WithObserver(h.trace),
		dispatch.WithIDGenerator(dispatch.NewSequenceGenerator("tx")),
		dispatch.WithRedelivery(scenario.Redelivery),
	}
	if scenario.MaxSteps > 0 {
		dopts = append(dopts, dispatch.WithMaxSteps(scenario.MaxSteps))
	}
	repo := entity.NewRepository(st, bank.NewRegistry(), entity.WithLogger(o.logger))
	h.dispatcher = dispatch.New(repo, h.domain, dopts...)

	ctx := context.Background()
	if err := h.setup(ctx, scenario.Accounts); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.step(ctx, i, step, result); err != nil {
			return nil, err
		}
	}
	if _, err := h.dispatcher.Drain(ctx); err != nil {
		return nil, err
	}

	for _, msg := range h.check(ctx, scenario.Expect) {
		result.AddError(msg)
	}
	result.Trace = h.trace.Entries()
	return result, nil
}

func (h *Harness) setup(ctx context.Context, accounts []AccountSetup) error {
	for _, a := range accounts {
		cmd := &bank.OpenAccount{AccountID: a.ID, Owner: a.Owner, Balance: a.Balance}
		if _, err := h.dispatcher.Process(ctx, cmd); err != nil {
			return fmt.Errorf("open %s: %w", a.ID, err)
		}
	}
	return nil
}

func (h *Harness) step(ctx context.Context, i int, step Step, result *Result) error {
	cmd, err := h.command(step)
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}

	_, err = h.dispatcher.Process(ctx, cmd)
	switch {
	case step.Error == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, cmd.Name(), err))
	case step.Error != "" && err == nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got success", i, cmd.Name(), step.Error))
	case step.Error != "" && !errorMatches(err, step.Error):
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %v", i, cmd.Name(), step.Error, err))
	}

	if step.Hold {
		return nil
	}
	_, err = h.dispatcher.Drain(ctx)
	return err
}

func errorMatches(err error, want string) bool {
	if string(saga.CodeOf(err)) == want {
		return true
	}
	return strings.Contains(err.Error(), want)
}

// command builds the dispatcher command for step. Unless pinned,
// transaction ids come from the dispatcher's sequence.
func (h *Harness) command(step Step) (dispatch.Command, error) {
	switch {
	case step.Transfer != nil:
		s := step.Transfer
		txID := s.Transaction
		if txID == "" {
			txID = h.dispatcher.NewID()
		}
		return h.domain.StartTransfer(s.ID, txID, s.From, s.To, s.Amount)
	case step.Collect != nil:
		s := step.Collect
		return h.domain.StartCollect(s.Account, h.dispatcher.NewID(), s.Sources, s.Amount)
	case step.Freeze != nil:
		s := step.Freeze
		return h.domain.StartFreeze(s.ID, h.dispatcher.NewID(), s.Account)
	case step.Stage != nil:
		return h.stage(step.Stage)
	case step.Report != nil:
		return h.report(step.Report)
	}
	return nil, fmt.Errorf("empty step")
}

func (h *Harness) stage(s *StageStep) (dispatch.Command, error) {
	initiator, err := store.ParseStream(s.Initiator)
	if err != nil {
		return nil, err
	}
	tag, err := h.domain.TransactionType(s.Type)
	if err != nil {
		return nil, err
	}
	participant := saga.NewParticipant(s.Account)
	args := ir.IRObject{"amount": ir.IRInt(s.Amount)}
	return &dispatch.Stage{
		Participant: participant,
		Stream:      h.domain.ParticipantStream(participant),
		Initiator:   initiator,
		Preparation: saga.Preparation{
			TransactionID:   s.Transaction,
			TransactionType: tag,
			Kind:            saga.PreparationKind(s.Kind),
			Args:            args,
		},
	}, nil
}

func (h *Harness) report(s *ReportStep) (dispatch.Command, error) {
	initiator, err := store.ParseStream(s.Initiator)
	if err != nil {
		return nil, err
	}
	tag, err := h.domain.TransactionType(s.Type)
	if err != nil {
		return nil, err
	}
	participant := saga.NewParticipant(s.Participant)
	if s.Phase == PhasePreCommit {
		return &dispatch.ReportPreCommitResult{
			Initiator:     initiator,
			TransactionID: s.Transaction,
			Type:          tag,
			Participant:   participant,
			Success:       s.Success,
		}, nil
	}
	return &dispatch.ReportFinalizationResult{
		Initiator:     initiator,
		TransactionID: s.Transaction,
		Type:          tag,
		Participant:   participant,
		Committed:     s.Success,
	}, nil
}
