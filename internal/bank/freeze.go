package bank

import (
	"fmt"

	"github.com/roach88/eventual2pc/internal/ir"
	"github.com/roach88/eventual2pc/internal/saga"
)

// Freeze blocks one account. It commits only when nothing else is staged on
// the account, and afterwards the account refuses every preparation.
type Freeze struct {
	*saga.InitiatorRole

	id      string
	req     *FreezeRequested
	outcome Outcome
}

// NewFreeze returns a freeze that has not been requested yet.
func NewFreeze(id string) *Freeze {
	f := &Freeze{id: id}
	f.InitiatorRole = saga.NewInitiatorRole(FreezeStream(id).String(), f)
	return f
}

// ID returns the freeze id.
func (f *Freeze) ID() string { return f.id }

// Outcome returns the freeze outcome.
func (f *Freeze) Outcome() Outcome { return f.outcome }

// Request returns the folded request, or nil.
func (f *Freeze) Request() *FreezeRequested { return f.req }

// Start emits FreezeRequested followed by the TransactionStarted of a freeze
// over [account].
func (f *Freeze) Start(txID string, txType saga.TransactionType, account string) ([]saga.Record, error) {
	if f.req != nil {
		return nil, fmt.Errorf("%w: %s", ErrFreezeExists, f.id)
	}
	req := &FreezeRequested{FreezeID: f.id, TransactionID: txID, Account: account}

	draft := NewFreeze(f.id)
	if err := draft.Apply(req); err != nil {
		return nil, err
	}
	started, err := draft.StartTransaction(txID, txType, saga.Participants(account))
	if err != nil {
		return nil, err
	}
	return append([]saga.Record{req}, started...), nil
}

// Annotate tags every saga record of the freeze with its account.
func (f *Freeze) Annotate(saga.RecordKind, saga.TransactionRef) ir.IRObject {
	if f.req == nil {
		return nil
	}
	return ir.IRObject{"account": ir.IRString(f.req.Account)}
}

// PlanPreparations asks the account to stage a freeze.
func (f *Freeze) PlanPreparations(started *saga.TransactionStarted) ([]saga.PlannedPreparation, error) {
	if f.req == nil {
		return nil, fmt.Errorf("freeze %s: not requested", f.id)
	}
	return []saga.PlannedPreparation{{
		Participant: saga.NewParticipant(f.req.Account),
		Preparation: saga.Preparation{
			TransactionID:   started.TransactionID,
			TransactionType: started.TransactionType,
			Kind:            KindFreeze,
		},
	}}, nil
}

// Apply folds one record of the freeze stream.
func (f *Freeze) Apply(rec saga.Record) error {
	if r, ok := rec.(*FreezeRequested); ok {
		if f.req != nil {
			return fmt.Errorf("freeze %s: requested twice", f.id)
		}
		req := *r
		f.req = &req
		f.outcome = OutcomePending
		return nil
	}

	ok, err := f.InitiatorRole.Apply(rec)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("freeze %s: unexpected record %s", f.id, rec.RecordKind())
	}
	if r, ok := rec.(*saga.TransactionCompleted); ok {
		if r.IsCommitSuccess {
			f.outcome = OutcomeCommitted
		} else {
			f.outcome = OutcomeRolledBack
		}
	}
	return nil
}

// FreezeView is the read model served over HTTP.
type FreezeView struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Account       string  `json:"account,omitempty"`
	Outcome       Outcome `json:"outcome"`
	Phase         string  `json:"phase"`
}

// View snapshots the freeze.
func (f *Freeze) View() FreezeView {
	v := FreezeView{ID: f.id, Outcome: f.outcome, Phase: f.Context().Phase().String()}
	if f.req != nil {
		v.TransactionID = f.req.TransactionID
		v.Account = f.req.Account
	}
	return v
}
