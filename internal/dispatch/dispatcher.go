package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/eventual2pc/internal/entity"
	"github.com/roach88/eventual2pc/internal/saga"
	"github.com/roach88/eventual2pc/internal/store"
)

// Domain builds entities and locates participants.
type Domain interface {
	NewEntity(stream store.Stream) (entity.Entity, error)
	ParticipantStream(p saga.ParticipantInfo) store.Stream
}

// Dispatcher executes commands and routes the records they produce.
//
// Thread-safety model:
//   - Submit, Process, Execute: safe from any goroutine
//   - Run, Drain: one goroutine at a time
type Dispatcher struct {
	repo       *entity.Repository
	domain     Domain
	queue      *commandQueue
	clock      *Clock
	ids        IDGenerator
	logger     *slog.Logger
	metrics    *Metrics
	observers  []Observer
	redelivery int
	quota      *quotaTracker
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the logical clock, e.g. to resume numbering.
func WithClock(c *Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithIDGenerator replaces the UUIDv7 id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Dispatcher) { d.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithObserver adds an observer of processed commands.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// WithRedelivery executes every protocol command n extra times.
func WithRedelivery(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.redelivery = n
		}
	}
}

// WithMaxSteps sets the per-transaction step budget.
//
// Default: 1000 steps (DefaultMaxSteps).
func WithMaxSteps(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.quota = newQuotaTracker(n)
		}
	}
}

// New creates a dispatcher over repo and domain.
func New(repo *entity.Repository, domain Domain, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:   repo,
		domain: domain,
		queue:  newCommandQueue(),
		clock:  NewClock(),
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
		quota:  newQuotaTracker(DefaultMaxSteps),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewID returns a fresh id from the configured generator.
func (d *Dispatcher) NewID() string {
	return d.ids.Generate()
}

// Clock returns the logical clock.
func (d *Dispatcher) Clock() *Clock { return d.clock }

// Pending returns the number of queued commands.
func (d *Dispatcher) Pending() int { return d.queue.Len() }

// Load folds the stream into a new entity.
func (d *Dispatcher) Load(ctx context.Context, stream store.Stream) (entity.Entity, int64, error) {
	e, err := d.domain.NewEntity(stream)
	if err != nil {
		return nil, 0, err
	}
	version, err := d.repo.Load(ctx, stream, e)
	if err != nil {
		return nil, 0, err
	}
	return e, version, nil
}

// Execute runs cmd against its target and appends the records. It neither
// observes the command nor schedules follow-ups.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) (entity.Result, error) {
	stream := cmd.Target()
	if _, err := d.domain.NewEntity(stream); err != nil {
		return entity.Result{}, err
	}
	newEntity := func() entity.Entity {
		e, _ := d.domain.NewEntity(stream)
		return e
	}
	return d.repo.Execute(ctx, stream, newEntity, cmd.Handle)
}

// Process executes cmd, reports it, and queues its follow-ups. The error is
// the command's own; failures of protocol commands are also turned into
// follow-ups where the protocol asks for it.
func (d *Dispatcher) Process(ctx context.Context, cmd Command) (entity.Result, error) {
	res, err := d.Execute(ctx, cmd)
	d.record(cmd, false, res.Records, err)
	if ctx.Err() != nil {
		return res, err
	}

	var budgetErr error
	if pc, ok := cmd.(protocolCommand); ok {
		budgetErr = d.quota.Check(pc.transaction())
	}

	next := d.followUps(cmd, res, err)
	if budgetErr != nil {
		d.logger.Error("dropping follow-ups",
			"command", cmd.Name(),
			"stream", cmd.Target().String(),
			"error", budgetErr)
		next = nil
	}

	if pc, ok := cmd.(protocolCommand); ok {
		for i := 0; i < d.redelivery; i++ {
			dup, dupErr := d.Execute(ctx, pc)
			d.record(pc, true, dup.Records, dupErr)
			if len(dup.Records) > 0 {
				d.logger.Warn("redelivery appended records",
					"command", pc.Name(),
					"stream", pc.Target().String(),
					"records", len(dup.Records))
			}
		}
	}

	for _, f := range next {
		if !d.queue.Enqueue(f) {
			d.logger.Warn("dispatcher stopped, follow-up lost",
				"command", f.Name(),
				"stream", f.Target().String())
		}
	}
	d.metrics.queued(d.queue.Len())
	return res, err
}

// Submit queues cmd for the Run loop. It returns false after Stop.
func (d *Dispatcher) Submit(cmd Command) bool {
	ok := d.queue.Enqueue(cmd)
	d.metrics.queued(d.queue.Len())
	return ok
}

// Drain processes queued commands until the queue is empty and returns how
// many were processed. Command errors are logged, not returned.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		cmd, ok := d.queue.TryDequeue()
		if !ok {
			return n, nil
		}
		d.processQueued(ctx, cmd)
		n++
	}
}

// Run processes queued commands until ctx is cancelled or Stop is called.
//
// ERROR HANDLING: a failing command is logged with its full context and the
// loop continues. Protocol refusals have already been turned into reports,
// so nothing is retried here.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting")
	for {
		if cmd, ok := d.queue.TryDequeue(); ok {
			d.processQueued(ctx, cmd)
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping: context cancelled")
			d.queue.Close()
			return ctx.Err()
		case <-d.queue.Wait():
			if d.queue.Done() {
				d.logger.Info("dispatcher stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queue is empty.
func (d *Dispatcher) Stop() {
	d.queue.Close()
}

func (d *Dispatcher) processQueued(ctx context.Context, cmd Command) {
	_, err := d.Process(ctx, cmd)
	if err == nil {
		return
	}
	if _, ok := cmd.(protocolCommand); ok {
		// Already handled by followUps.
		return
	}
	d.logger.Error("command failed",
		"command", cmd.Name(),
		"stream", cmd.Target().String(),
		"error", err)
}

func (d *Dispatcher) record(cmd Command, redelivery bool, recs []saga.Record, err error) {
	outcome := outcomeOf(recs, err)
	d.metrics.command(cmd.Name(), outcome)
	d.metrics.appended(recs)

	seq := d.clock.Next()
	if len(d.observers) == 0 {
		return
	}
	entry := TraceEntry{
		Seq:        seq,
		Command:    cmd.Name(),
		Stream:     cmd.Target().String(),
		Redelivery: redelivery,
		Outcome:    outcome,
	}
	for _, rec := range recs {
		entry.Records = append(entry.Records, rec.RecordKind())
	}
	for _, o := range d.observers {
		o.Observe(entry)
	}
}

// followUps derives the commands that continue the protocol after cmd.
func (d *Dispatcher) followUps(cmd Command, res entity.Result, err error) []Command {
	var out []Command

	switch c := cmd.(type) {
	case *Stage:
		switch {
		case err == nil:
			out = append(out, c.Report(true, ""))
		case saga.CodeOf(err) != "":
			d.logger.Info("precommit refused",
				"participant", c.Participant.String(),
				"tx", c.Preparation.TransactionID,
				"reason", err)
			out = append(out, c.Report(false, err.Error()))
		default:
			d.logger.Error("stage failed, transaction stalls until redelivered",
				"stream", c.Stream.String(),
				"tx", c.Preparation.TransactionID,
				"error", err)
		}
	case *Finalize:
		switch {
		case err == nil:
			out = append(out, c.Report())
		case errors.Is(err, saga.ErrPreparationNotFound):
			d.logger.Warn("finalize found nothing staged",
				"stream", c.Stream.String(),
				"tx", c.TransactionID,
				"commit", c.Commit)
		default:
			d.logger.Error("finalize failed",
				"stream", c.Stream.String(),
				"tx", c.TransactionID,
				"error", err)
		}
	case *ReportPreCommitResult, *ReportFinalizationResult:
		if err != nil {
			level := slog.LevelError
			if saga.CodeOf(err) != "" {
				level = slog.LevelWarn
			}
			d.logger.Log(context.Background(), level, "report dropped",
				"command", cmd.Name(),
				"stream", cmd.Target().String(),
				"error", err)
		}
	}
	if err != nil {
		return out
	}

	initiator := cmd.Target()
	for _, rec := range res.Records {
		switch r := rec.(type) {
		case *saga.TransactionStarted:
			stages, perr := d.plan(res.Entity, initiator, r)
			if perr != nil {
				d.logger.Error("cannot plan preparations",
					"stream", initiator.String(),
					"tx", r.TransactionID,
					"error", perr)
				continue
			}
			out = append(out, stages...)
		case *saga.AllParticipantsPreCommitSucceeded:
			for _, p := range r.Participants {
				out = append(out, d.finalize(initiator, r.Header, p, true))
			}
		case *saga.AnyParticipantPreCommitFailed:
			for _, p := range append(append([]saga.ParticipantInfo{}, r.Succeeded...), r.Failed...) {
				out = append(out, d.finalize(initiator, r.Header, p, false))
			}
		case *saga.TransactionCompleted:
			d.quota.Forget(initiator.String() + "#" + r.TransactionID)
			d.metrics.transactionCompleted(r.IsCommitSuccess)
			d.logger.Info("transaction completed",
				"stream", initiator.String(),
				"tx", r.TransactionID,
				"commit", r.IsCommitSuccess)
		}
	}
	return out
}

func (d *Dispatcher) plan(e entity.Entity, initiator store.Stream, started *saga.TransactionStarted) ([]Command, error) {
	planner, ok := e.(saga.Planner)
	if !ok {
		return nil, fmt.Errorf("%T cannot plan preparations", e)
	}
	plans, err := planner.PlanPreparations(started)
	if err != nil {
		return nil, err
	}
	out := make([]Command, 0, len(plans))
	for _, p := range plans {
		out = append(out, &Stage{
			Participant: p.Participant,
			Stream:      d.domain.ParticipantStream(p.Participant),
			Initiator:   initiator,
			Preparation: p.Preparation,
		})
	}
	return out, nil
}

func (d *Dispatcher) finalize(initiator store.Stream, h saga.Header, p saga.ParticipantInfo, commit bool) *Finalize {
	return &Finalize{
		Participant:   p,
		Stream:        d.domain.ParticipantStream(p),
		Initiator:     initiator,
		TransactionID: h.TransactionID,
		Type:          h.TransactionType,
		Commit:        commit,
	}
}
