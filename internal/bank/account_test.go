package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventual2pc/internal/catalog"
	"github.com/roach88/eventual2pc/internal/ir"
	"github.com/roach88/eventual2pc/internal/saga"
)

const (
	tagTransfer saga.TransactionType = 1
	tagCollect  saga.TransactionType = 2
	tagFreeze   saga.TransactionType = 3
)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

type folder interface {
	Apply(saga.Record) error
}

func fold(t *testing.T, e folder, recs []saga.Record, err error) []saga.Record {
	t.Helper()
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, e.Apply(rec))
	}
	return recs
}

func openAccount(t *testing.T, id string, balance int64) *Account {
	t.Helper()
	a := NewAccount(id, defaultCatalog(t))
	recs, err := a.Open("owner-"+id, balance)
	fold(t, a, recs, err)
	return a
}

func debit(txID string, amount int64) *saga.Preparation {
	return &saga.Preparation{
		TransactionID:   txID,
		TransactionType: tagTransfer,
		Kind:            KindDebit,
		Args:            ir.IRObject{"amount": ir.IRInt(amount)},
	}
}

func credit(txID string, amount int64) *saga.Preparation {
	p := debit(txID, amount)
	p.Kind = KindCredit
	return p
}

func freeze(txID string) *saga.Preparation {
	return &saga.Preparation{TransactionID: txID, TransactionType: tagFreeze, Kind: KindFreeze}
}

func TestAccountOpen(t *testing.T) {
	a := openAccount(t, "A", 100)
	assert.True(t, a.Opened())
	assert.Equal(t, int64(100), a.Balance())

	_, err := a.Open("x", 1)
	assert.ErrorIs(t, err, ErrAccountExists)

	_, err = NewAccount("B", defaultCatalog(t)).Open("x", -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAccountDebitNeedsAvailableFunds(t *testing.T) {
	a := openAccount(t, "A", 50)

	recs, err := a.PreCommit(debit("tx-1", 30))
	fold(t, a, recs, err)
	assert.Equal(t, int64(50), a.Balance(), "staging does not move money")
	assert.Equal(t, int64(20), a.Available())

	_, err = a.PreCommit(debit("tx-2", 30))
	require.ErrorIs(t, err, saga.ErrPreparationRejected)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	recs, err = a.PreCommit(debit("tx-3", 20))
	fold(t, a, recs, err)
	assert.Equal(t, int64(0), a.Available())
}

func TestAccountCommitAndRollbackEffects(t *testing.T) {
	a := openAccount(t, "A", 50)

	recs, err := a.PreCommit(debit("tx-1", 30))
	fold(t, a, recs, err)
	recs, err = a.PreCommit(credit("tx-2", 5))
	fold(t, a, recs, err)

	recs, err = a.Commit("tx-1", "")
	fold(t, a, recs, err)
	assert.Equal(t, int64(20), a.Balance())

	recs, err = a.Rollback("tx-2", "")
	fold(t, a, recs, err)
	assert.Equal(t, int64(20), a.Balance())
	assert.Equal(t, 0, a.Participant().Ledger().Len())
}

func TestAccountRollbackWithoutPreparationIsNoOp(t *testing.T) {
	a := openAccount(t, "A", 50)

	recs, err := a.Rollback("never-staged", "")
	assert.NoError(t, err)
	assert.Empty(t, recs)

	_, err = a.Commit("never-staged", "")
	assert.ErrorIs(t, err, saga.ErrPreparationNotFound)
}

func TestAccountAdmission(t *testing.T) {
	closed := NewAccount("C", defaultCatalog(t))
	_, err := closed.PreCommit(credit("tx-1", 1))
	assert.ErrorIs(t, err, ErrAccountNotOpen)

	a := openAccount(t, "A", 50)
	_, err = a.PreCommit(credit("tx-1", 0))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	recs, err := a.PreCommit(credit("tx-2", 1))
	fold(t, a, recs, err)
	_, err = a.PreCommit(freeze("tx-3"))
	var excl *catalog.ExclusionError
	require.ErrorAs(t, err, &excl)
	assert.Equal(t, KindFreeze, excl.Kind)
	assert.Equal(t, KindCredit, excl.Staged)
}

func TestAccountRejectsKindsOutsideTheTransaction(t *testing.T) {
	a := openAccount(t, "A", 50)

	wrong := freeze("tx-1")
	wrong.TransactionType = tagTransfer
	_, err := a.PreCommit(wrong)
	require.ErrorIs(t, err, saga.ErrPreparationRejected)
	var ke *catalog.KindError
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, "transfer", ke.Transaction)

	c := credit("tx-2", 5)
	c.TransactionType = tagCollect
	_, err = a.PreCommit(c)
	assert.ErrorAs(t, err, &ke)
	assert.Equal(t, 0, a.Participant().Ledger().Len())
}

func TestAccountFreeze(t *testing.T) {
	a := openAccount(t, "A", 50)

	recs, err := a.PreCommit(freeze("tx-1"))
	fold(t, a, recs, err)
	recs, err = a.Commit("tx-1", "")
	fold(t, a, recs, err)
	assert.True(t, a.Frozen())

	_, err = a.PreCommit(credit("tx-2", 1))
	assert.ErrorIs(t, err, ErrAccountFrozen)
}

func TestAccountCollect(t *testing.T) {
	a := openAccount(t, "A", 0)

	_, err := a.StartCollect("tx-1", tagCollect, []string{"B", "C"}, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = a.StartCollect("tx-1", tagCollect, []string{"A", "B"}, 5)
	assert.ErrorIs(t, err, saga.ErrSelfParticipation)

	recs, err := a.StartCollect("tx-1", tagCollect, []string{"B", "C"}, 5)
	fold(t, a, recs, err)
	require.Len(t, recs, 2)
	assert.Equal(t, KindCollectRequested, recs[0].RecordKind())
	started := recs[1].(*saga.TransactionStarted)

	plan, err := a.PlanPreparations(started)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, saga.NewParticipant("C"), plan[1].Participant)
	assert.Equal(t, KindDebit, plan[1].Preparation.Kind)
	to, _ := plan[1].Preparation.Args.String("to")
	assert.Equal(t, "A", to)

	// Busy initiating, so it cannot take part in anything else.
	_, err = a.PreCommit(credit("tx-9", 1))
	assert.ErrorIs(t, err, saga.ErrAlreadyInTransaction)

	for _, id := range []string{"B", "C"} {
		recs, err := a.AddPreCommitSucceeded("tx-1", tagCollect, saga.NewParticipant(id))
		fold(t, a, recs, err)
	}
	for _, id := range []string{"B", "C"} {
		recs, err := a.AddCommitted("tx-1", tagCollect, saga.NewParticipant(id))
		fold(t, a, recs, err)
	}
	assert.Equal(t, int64(10), a.Balance())
	assert.False(t, a.Initiator().InTransaction())

	_, err = a.PlanPreparations(started)
	assert.Error(t, err, "collect is cleared on completion")
}

func TestAccountCollectRolledBackCreditsNothing(t *testing.T) {
	a := openAccount(t, "A", 0)
	recs, err := a.StartCollect("tx-1", tagCollect, []string{"B"}, 5)
	fold(t, a, recs, err)
	recs, err = a.AddPreCommitFailed("tx-1", tagCollect, saga.NewParticipant("B"))
	fold(t, a, recs, err)
	recs, err = a.AddRolledback("tx-1", tagCollect, saga.NewParticipant("B"))
	fold(t, a, recs, err)

	completed := recs[len(recs)-1].(*saga.TransactionCompleted)
	assert.False(t, completed.IsCommitSuccess)
	assert.Equal(t, int64(0), a.Balance())
}

func TestAccountView(t *testing.T) {
	a := openAccount(t, "A", 50)
	recs, err := a.PreCommit(debit("tx-1", 10))
	fold(t, a, recs, err)

	v := a.View()
	assert.Equal(t, "A", v.ID)
	assert.Equal(t, "owner-A", v.Owner)
	assert.Equal(t, int64(50), v.Balance)
	assert.Equal(t, int64(40), v.Available)
	assert.Len(t, v.Staged, 1)
	assert.Equal(t, "idle", v.Phase)
}

func TestAccountRejectsForeignRecords(t *testing.T) {
	a := NewAccount("A", defaultCatalog(t))
	assert.Error(t, a.Apply(&TransferRequested{TransferID: "T"}))
}
