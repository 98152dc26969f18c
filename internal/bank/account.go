package bank

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/eventual2pc/internal/catalog"
	"github.com/roach88/eventual2pc/internal/ir"
	"github.com/roach88/eventual2pc/internal/saga"
)

// Preparation kinds an account understands.
const (
	KindDebit  saga.PreparationKind = "debit"
	KindCredit saga.PreparationKind = "credit"
	KindFreeze saga.PreparationKind = "freeze"
)

var accountKinds = []saga.PreparationKind{KindDebit, KindCredit, KindFreeze}

// Account holds a balance. It stages changes for other transactions and can
// collect money from other accounts through transactions of its own.
type Account struct {
	*saga.CombinedRole

	id      string
	policy  saga.AdmissionPolicy
	opened  bool
	owner   string
	balance int64
	frozen  bool
	collect *CollectRequested
}

// NewAccount returns an unopened account. Only the preparation kinds present
// in cat are supported.
func NewAccount(id string, cat *catalog.Catalog) *Account {
	a := &Account{id: id, policy: cat.Policy()}
	var supported []saga.PreparationKind
	for _, kind := range cat.PreparationKinds() {
		if slices.Contains(accountKinds, kind) {
			supported = append(supported, kind)
		}
	}
	a.CombinedRole = saga.NewCombinedRole(id, supported, saga.AdmitFunc(a.admit), nil)
	return a
}

// ID returns the account id.
func (a *Account) ID() string { return a.id }

// Opened reports whether AccountOpened has been folded.
func (a *Account) Opened() bool { return a.opened }

// Balance returns the committed balance.
func (a *Account) Balance() int64 { return a.balance }

// Frozen reports whether a freeze has been committed.
func (a *Account) Frozen() bool { return a.frozen }

// Available is the balance minus every staged debit.
func (a *Account) Available() int64 {
	return available(a.balance, a.Participant().Ledger())
}

func available(balance int64, staged *saga.PreparationLedger) int64 {
	for _, p := range staged.ByKind(KindDebit) {
		amount, _ := p.Args.Int("amount")
		balance -= amount
	}
	return balance
}

// Open emits AccountOpened. A zero opening balance is allowed.
func (a *Account) Open(owner string, balance int64) ([]saga.Record, error) {
	if a.opened {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, a.id)
	}
	if balance < 0 {
		return nil, fmt.Errorf("%w: opening balance %d", ErrInvalidAmount, balance)
	}
	return []saga.Record{&AccountOpened{AccountID: a.id, Owner: owner, Balance: balance}}, nil
}

// StartCollect starts a transaction pulling amount from every source. The
// collected total is credited here once the transaction completes with a
// commit.
func (a *Account) StartCollect(txID string, txType saga.TransactionType, sources []string, amount int64) ([]saga.Record, error) {
	if !a.opened {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotOpen, a.id)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: collect amount %d", ErrInvalidAmount, amount)
	}
	if txID == "" {
		return nil, errors.New("collect needs a transaction id")
	}
	participants := saga.Participants(sources...)
	started, err := a.StartTransaction(txID, txType, participants)
	if err != nil {
		return nil, err
	}
	req := &CollectRequested{TransactionID: txID, Sources: participants, Amount: amount}
	return append([]saga.Record{req}, started...), nil
}

// Rollback treats a missing preparation as already rolled back. A
// participant whose precommit failed has nothing staged for initiator but is
// still asked to roll back.
func (a *Account) Rollback(txID, initiator string) ([]saga.Record, error) {
	recs, err := a.CombinedRole.Rollback(txID, initiator)
	if errors.Is(err, saga.ErrPreparationNotFound) {
		return nil, nil
	}
	return recs, err
}

// PlanPreparations asks each source of the account's pending collect for a
// debit.
func (a *Account) PlanPreparations(started *saga.TransactionStarted) ([]saga.PlannedPreparation, error) {
	if a.collect == nil || a.collect.TransactionID != started.TransactionID {
		return nil, fmt.Errorf("account %s: no collect requested for transaction %s", a.id, started.TransactionID)
	}
	out := make([]saga.PlannedPreparation, 0, len(started.Participants))
	for _, p := range started.Participants {
		out = append(out, saga.PlannedPreparation{
			Participant: p,
			Preparation: saga.Preparation{
				TransactionID:   started.TransactionID,
				TransactionType: started.TransactionType,
				Kind:            KindDebit,
				Args:            ir.IRObject{"amount": ir.IRInt(a.collect.Amount), "to": ir.IRString(a.id)},
			},
		})
	}
	return out, nil
}

func (a *Account) admit(staged *saga.PreparationLedger, p saga.Preparation) error {
	if !a.opened {
		return fmt.Errorf("%w: %s", ErrAccountNotOpen, a.id)
	}
	if a.frozen {
		return fmt.Errorf("%w: %s", ErrAccountFrozen, a.id)
	}
	if err := a.policy.Admit(staged, p); err != nil {
		return err
	}
	if p.Kind == KindFreeze {
		return nil
	}
	amount, ok := p.Args.Int("amount")
	if !ok || amount <= 0 {
		return fmt.Errorf("%w: %s preparation", ErrInvalidAmount, p.Kind)
	}
	if p.Kind == KindDebit {
		if avail := available(a.balance, staged); avail < amount {
			return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, avail, amount)
		}
	}
	return nil
}

// Apply folds one record of the account stream.
func (a *Account) Apply(rec saga.Record) error {
	switch r := rec.(type) {
	case *AccountOpened:
		if a.opened {
			return fmt.Errorf("account %s: opened twice", a.id)
		}
		a.opened = true
		a.owner = r.Owner
		a.balance = r.Balance
		return nil
	case *CollectRequested:
		c := *r
		c.Sources = slices.Clone(r.Sources)
		a.collect = &c
		return nil
	}

	ok, err := a.CombinedRole.Apply(rec)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("account %s: unexpected record %s", a.id, rec.RecordKind())
	}

	switch r := rec.(type) {
	case *saga.PreparationCommitted:
		a.commitEffect(r.Preparation)
	case *saga.TransactionCompleted:
		if a.collect != nil && a.collect.TransactionID == r.TransactionID {
			if r.IsCommitSuccess {
				a.balance += a.collect.Amount * int64(len(a.collect.Sources))
			}
			a.collect = nil
		}
	}
	return nil
}

func (a *Account) commitEffect(p saga.Preparation) {
	amount, _ := p.Args.Int("amount")
	switch p.Kind {
	case KindDebit:
		a.balance -= amount
	case KindCredit:
		a.balance += amount
	case KindFreeze:
		a.frozen = true
	}
}

// AccountView is the read model served over HTTP.
type AccountView struct {
	ID            string             `json:"id"`
	Owner         string             `json:"owner,omitempty"`
	Open          bool               `json:"open"`
	Balance       int64              `json:"balance"`
	Available     int64              `json:"available"`
	Frozen        bool               `json:"frozen"`
	Staged        []saga.Preparation `json:"staged"`
	Phase         string             `json:"phase"`
	TransactionID string             `json:"transaction_id,omitempty"`
}

// View snapshots the account.
func (a *Account) View() AccountView {
	ctx := a.Initiator().Context()
	return AccountView{
		ID:            a.id,
		Owner:         a.owner,
		Open:          a.opened,
		Balance:       a.balance,
		Available:     a.Available(),
		Frozen:        a.frozen,
		Staged:        a.Participant().Ledger().All(),
		Phase:         ctx.Phase().String(),
		TransactionID: ctx.TransactionID,
	}
}
