package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/entity"
	"github.com/roach88/eventual2pc/internal/saga"
	"github.com/roach88/eventual2pc/internal/store"
	"github.com/roach88/eventual2pc/internal/testutil"
)

type fixture struct {
	d      *Dispatcher
	domain *bank.Domain
	trace  *Recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := testutil.DiscardLogger()
	repo := entity.NewRepository(testutil.MemStore(t), bank.NewRegistry(), entity.WithLogger(logger))
	f := &fixture{domain: bank.NewDomain(testutil.DefaultCatalog(t)), trace: &Recorder{}}
	opts = append([]Option{
		WithLogger(logger),
		WithObserver(f.trace),
		WithIDGenerator(NewSequenceGenerator("tx")),
	}, opts...)
	f.d = New(repo, f.domain, opts...)
	return f
}

func (f *fixture) process(t *testing.T, cmd Command) entity.Result {
	t.Helper()
	res, err := f.d.Process(context.Background(), cmd)
	require.NoError(t, err)
	return res
}

func (f *fixture) open(t *testing.T, id string, balance int64) {
	t.Helper()
	f.process(t, &bank.OpenAccount{AccountID: id, Balance: balance})
}

func (f *fixture) startTransfer(t *testing.T, id, from, to string, amount int64) {
	t.Helper()
	cmd, err := f.domain.StartTransfer(id, f.d.NewID(), from, to, amount)
	require.NoError(t, err)
	f.process(t, cmd)
}

func (f *fixture) startCollect(t *testing.T, id string, amount int64, sources ...string) {
	t.Helper()
	cmd, err := f.domain.StartCollect(id, f.d.NewID(), sources, amount)
	require.NoError(t, err)
	f.process(t, cmd)
}

func (f *fixture) drain(t *testing.T) int {
	t.Helper()
	n, err := f.d.Drain(context.Background())
	require.NoError(t, err)
	return n
}

func (f *fixture) account(t *testing.T, id string) *bank.Account {
	t.Helper()
	e, _, err := f.d.Load(context.Background(), bank.AccountStream(id))
	require.NoError(t, err)
	return e.(*bank.Account)
}

func (f *fixture) transfer(t *testing.T, id string) *bank.Transfer {
	t.Helper()
	e, _, err := f.d.Load(context.Background(), bank.TransferStream(id))
	require.NoError(t, err)
	return e.(*bank.Transfer)
}

func (f *fixture) balances(t *testing.T, ids ...string) []int64 {
	t.Helper()
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = f.account(t, id).Balance()
	}
	return out
}

func commandNames(entries []TraceEntry) []string {
	var out []string
	for _, e := range entries {
		if !e.Redelivery {
			out = append(out, e.Command)
		}
	}
	return out
}

func TestDispatcher_TransferCommits(t *testing.T) {
	f := newFixture(t)
	f.open(t, "A", 100)
	f.open(t, "B", 0)
	f.startTransfer(t, "T1", "A", "B", 30)

	assert.Equal(t, 2, f.d.Pending(), "one stage per participant")
	assert.Equal(t, 8, f.drain(t))

	assert.Equal(t, []int64{70, 30}, f.balances(t, "A", "B"))
	tr := f.transfer(t, "T1")
	assert.Equal(t, bank.OutcomeCommitted, tr.Outcome())
	assert.False(t, tr.InTransaction())

	entries := f.trace.Entries()
	assert.Equal(t, []string{
		"OpenAccount", "OpenAccount", "StartTransfer",
		CommandStage, CommandStage,
		CommandReportPreCommitResult, CommandReportPreCommitResult,
		CommandFinalize, CommandFinalize,
		CommandReportFinalizationResult, CommandReportFinalizationResult,
	}, commandNames(entries))
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	last := entries[len(entries)-1]
	assert.Equal(t, []saga.RecordKind{saga.KindCommittedParticipantAdded, saga.KindTransactionCompleted}, last.Records)
	assert.Equal(t, "transfer/T1", last.Stream)
}

func TestDispatcher_ReusedTransactionIDDoesNotStall(t *testing.T) {
	f := newFixture(t)
	f.open(t, "A", 100)
	f.open(t, "B", 0)

	for _, id := range []string{"T1", "T2"} {
		cmd, err := f.domain.StartTransfer(id, "dup", "A", "B", 30)
		require.NoError(t, err)
		f.process(t, cmd)
	}
	f.drain(t)

	assert.Equal(t, bank.OutcomeCommitted, f.transfer(t, "T1").Outcome())
	assert.Equal(t, bank.OutcomeRolledBack, f.transfer(t, "T2").Outcome(), "conflicting stage fails, rollback leaves T1 alone")
	assert.Equal(t, []int64{70, 30}, f.balances(t, "A", "B"))
	assert.Equal(t, 0, f.account(t, "A").Participant().Ledger().Len())
	assert.Equal(t, 0, f.account(t, "B").Participant().Ledger().Len())

	// Once T1 has released its preparations the id is free again.
	cmd, err := f.domain.StartTransfer("T3", "dup", "A", "B", 30)
	require.NoError(t, err)
	f.process(t, cmd)
	f.drain(t)
	assert.Equal(t, bank.OutcomeCommitted, f.transfer(t, "T3").Outcome())
	assert.Equal(t, []int64{40, 60}, f.balances(t, "A", "B"))
}

func TestDispatcher_TransferToDecomposedAccountID(t *testing.T) {
	f := newFixture(t)
	decomposed := "jose\u0301"
	f.open(t, "A", 100)
	f.open(t, decomposed, 0)
	f.startTransfer(t, "T1", "A", decomposed, 30)
	f.drain(t)

	assert.Equal(t, bank.OutcomeCommitted, f.transfer(t, "T1").Outcome())
	assert.Equal(t, []int64{70, 30}, f.balances(t, "A", "jos\u00e9"))
}

func TestDispatcher_FailedPreCommitRollsBackEveryone(t *testing.T) {
	f := newFixture(t)
	f.open(t, "A", 10)
	f.open(t, "B", 0)
	f.startTransfer(t, "T1", "A", "B", 30)
	f.drain(t)

	assert.Equal(t, []int64{10, 0}, f.balances(t, "A", "B"))
	assert.Equal(t, bank.OutcomeRolledBack, f.transfer(t, "T1").Outcome())
	assert.Equal(t, 0, f.account(t, "B").Participant().Ledger().Len(), "staged credit released")

	entries := f.trace.Entries()
	assert.Equal(t, string(saga.CodePreparationRejected), entries[3].Outcome)
	assert.Equal(t, OutcomeNoop, entries[8].Outcome, "rollback of the refused participant has nothing to release")
}

func TestDispatcher_CompetingTransfersNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.open(t, "A", 50)
	f.open(t, "B", 0)
	f.open(t, "C", 0)
	f.startTransfer(t, "T1", "A", "B", 30)
	f.startTransfer(t, "T2", "A", "C", 30)
	f.drain(t)

	assert.Equal(t, bank.OutcomeCommitted, f.transfer(t, "T1").Outcome())
	assert.Equal(t, bank.OutcomeRolledBack, f.transfer(t, "T2").Outcome())
	assert.Equal(t, []int64{20, 30, 0}, f.balances(t, "A", "B", "C"))
}

func TestDispatcher_Collect(t *testing.T) {
	tests := []struct {
		name string
		c    int64
		want []int64
	}{
		{"all sources pay", 10, []int64{10, 5, 5}},
		{"one source short", 2, []int64{0, 10, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(t, "A", 0)
			f.open(t, "B", 10)
			f.open(t, "C", tt.c)
			f.startCollect(t, "A", 5, "B", "C")
			f.drain(t)

			assert.Equal(t, tt.want, f.balances(t, "A", "B", "C"))
			assert.False(t, f.account(t, "A").Initiator().InTransaction())
		})
	}
}

func TestDispatcher_BusyInitiatorRefusesToParticipate(t *testing.T) {
	f := newFixture(t)
	f.open(t, "A", 0)
	f.open(t, "B", 10)
	f.open(t, "C", 10)
	f.startCollect(t, "A", 5, "B")
	f.startTransfer(t, "T1", "C", "A", 5)
	f.drain(t)

	assert.Equal(t, bank.OutcomeRolledBack, f.transfer(t, "T1").Outcome())
	assert.Equal(t, []int64{5, 5, 10}, f.balances(t, "A", "B", "C"))

	var refused []string
	for _, e := range f.trace.Entries() {
		if e.Outcome == string(saga.CodeAlreadyInTransaction) {
			refused = append(refused, e.Stream)
		}
	}
	assert.Equal(t, []string{"account/A"}, refused)
}

func TestDispatcher_RedeliveryIsHarmless(t *testing.T) {
	plain := newFixture(t)
	dup := newFixture(t, WithRedelivery(2))
	for _, f := range []*fixture{plain, dup} {
		f.open(t, "A", 100)
		f.open(t, "B", 0)
		f.startTransfer(t, "T1", "A", "B", 30)
		f.drain(t)
	}

	assert.Equal(t, plain.balances(t, "A", "B"), dup.balances(t, "A", "B"))
	assert.Equal(t, bank.OutcomeCommitted, dup.transfer(t, "T1").Outcome())
	assert.Equal(t, commandNames(plain.trace.Entries()), commandNames(dup.trace.Entries()))

	redelivered := 0
	for _, e := range dup.trace.Entries() {
		if e.Redelivery {
			redelivered++
			assert.Empty(t, e.Records, "%s on %s appended records", e.Command, e.Stream)
		}
	}
	assert.Equal(t, 16, redelivered)
}

func TestDispatcher_MaxStepsStallsTransaction(t *testing.T) {
	f := newFixture(t, WithMaxSteps(1))
	f.open(t, "A", 100)
	f.open(t, "B", 0)
	f.startTransfer(t, "T1", "A", "B", 30)
	f.drain(t)

	ctx := f.transfer(t, "T1").Context()
	assert.Equal(t, saga.PhaseAwaitingPreCommit, ctx.Phase())
	assert.Equal(t, saga.Participants("A"), ctx.Succeeded)
}

func TestDispatcher_DomainErrorsAreReturned(t *testing.T) {
	f := newFixture(t)
	f.open(t, "A", 100)

	cmd, err := f.domain.StartTransfer("T1", "tx-x", "A", "B", 0)
	require.NoError(t, err)
	_, err = f.d.Process(context.Background(), cmd)
	assert.ErrorIs(t, err, bank.ErrInvalidAmount)
	assert.Equal(t, 0, f.d.Pending())

	_, err = f.d.Process(context.Background(), &bank.OpenAccount{AccountID: "A"})
	assert.ErrorIs(t, err, bank.ErrAccountExists)

	_, err = f.d.Process(context.Background(), &Stage{Stream: store.Stream{Type: "loan", ID: "L"}})
	assert.ErrorIs(t, err, bank.ErrUnknownStream)
}

func TestDispatcher_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newFixture(t, WithMetrics(m))
	f.open(t, "A", 100)
	f.open(t, "B", 0)
	f.startTransfer(t, "T1", "A", "B", 30)
	f.drain(t)

	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.completed.WithLabelValues("committed")))
	assert.Equal(t, float64(2), promtestutil.ToFloat64(m.commands.WithLabelValues(CommandStage, OutcomeOK)))
	assert.Equal(t, float64(2), promtestutil.ToFloat64(m.records.WithLabelValues(string(saga.KindPreparationStaged))))
	assert.Equal(t, float64(0), promtestutil.ToFloat64(m.queueDepth))
}

func TestDispatcher_RunLoop(t *testing.T) {
	f := newFixture(t)
	f.open(t, "A", 100)
	f.open(t, "B", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.d.Run(ctx) }()

	cmd, err := f.domain.StartTransfer("T1", f.d.NewID(), "A", "B", 30)
	require.NoError(t, err)
	require.True(t, f.d.Submit(cmd))

	require.Eventually(t, func() bool {
		return f.transfer(t, "T1").Outcome() == bank.OutcomeCommitted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, f.d.Submit(cmd), "queue closed on shutdown")
}

func TestDispatcher_StopEndsRun(t *testing.T) {
	f := newFixture(t)
	f.d.Stop()
	assert.NoError(t, f.d.Run(context.Background()))
}
