package bank

import (
	"fmt"

	"github.com/roach88/eventual2pc/internal/ir"
	"github.com/roach88/eventual2pc/internal/saga"
)

// Outcome is where a transfer ended up.
type Outcome string

const (
	OutcomeNone       Outcome = ""
	OutcomePending    Outcome = "pending"
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// Transfer moves Amount from one account to another. It only initiates.
type Transfer struct {
	*saga.InitiatorRole

	id      string
	req     *TransferRequested
	outcome Outcome
}

// NewTransfer returns a transfer that has not been requested yet. Its saga
// identity is its stream name, so it can never collide with an account.
func NewTransfer(id string) *Transfer {
	t := &Transfer{id: id}
	t.InitiatorRole = saga.NewInitiatorRole(TransferStream(id).String(), t)
	return t
}

// ID returns the transfer id.
func (t *Transfer) ID() string { return t.id }

// Outcome returns the transfer outcome.
func (t *Transfer) Outcome() Outcome { return t.outcome }

// Request returns the folded request, or nil.
func (t *Transfer) Request() *TransferRequested { return t.req }

// Start emits TransferRequested followed by the TransactionStarted of a
// transfer over [from, to].
func (t *Transfer) Start(txID string, txType saga.TransactionType, from, to string, amount int64) ([]saga.Record, error) {
	if t.req != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransferExists, t.id)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: transfer amount %d", ErrInvalidAmount, amount)
	}
	req := &TransferRequested{TransferID: t.id, TransactionID: txID, From: from, To: to, Amount: amount}

	// The start record is annotated from the request, so it is produced by
	// a draft that has already folded it.
	draft := NewTransfer(t.id)
	if err := draft.Apply(req); err != nil {
		return nil, err
	}
	started, err := draft.StartTransaction(txID, txType, saga.Participants(from, to))
	if err != nil {
		return nil, err
	}
	return append([]saga.Record{req}, started...), nil
}

// Annotate tags every saga record of the transfer with its terms.
func (t *Transfer) Annotate(saga.RecordKind, saga.TransactionRef) ir.IRObject {
	if t.req == nil {
		return nil
	}
	return ir.IRObject{
		"amount": ir.IRInt(t.req.Amount),
		"from":   ir.IRString(t.req.From),
		"to":     ir.IRString(t.req.To),
	}
}

// PlanPreparations debits the source and credits the destination.
func (t *Transfer) PlanPreparations(started *saga.TransactionStarted) ([]saga.PlannedPreparation, error) {
	if t.req == nil {
		return nil, fmt.Errorf("transfer %s: not requested", t.id)
	}
	plan := func(account string, kind saga.PreparationKind, counterpart, other string) saga.PlannedPreparation {
		return saga.PlannedPreparation{
			Participant: saga.NewParticipant(account),
			Preparation: saga.Preparation{
				TransactionID:   started.TransactionID,
				TransactionType: started.TransactionType,
				Kind:            kind,
				Args:            ir.IRObject{"amount": ir.IRInt(t.req.Amount), counterpart: ir.IRString(other)},
			},
		}
	}
	return []saga.PlannedPreparation{
		plan(t.req.From, KindDebit, "to", t.req.To),
		plan(t.req.To, KindCredit, "from", t.req.From),
	}, nil
}

// Apply folds one record of the transfer stream.
func (t *Transfer) Apply(rec saga.Record) error {
	if r, ok := rec.(*TransferRequested); ok {
		if t.req != nil {
			return fmt.Errorf("transfer %s: requested twice", t.id)
		}
		req := *r
		t.req = &req
		t.outcome = OutcomePending
		return nil
	}

	ok, err := t.InitiatorRole.Apply(rec)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("transfer %s: unexpected record %s", t.id, rec.RecordKind())
	}
	if r, ok := rec.(*saga.TransactionCompleted); ok {
		if r.IsCommitSuccess {
			t.outcome = OutcomeCommitted
		} else {
			t.outcome = OutcomeRolledBack
		}
	}
	return nil
}

// TransferView is the read model served over HTTP.
type TransferView struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transaction_id,omitempty"`
	From          string  `json:"from,omitempty"`
	To            string  `json:"to,omitempty"`
	Amount        int64   `json:"amount"`
	Outcome       Outcome `json:"outcome"`
	Phase         string  `json:"phase"`
}

// View snapshots the transfer.
func (t *Transfer) View() TransferView {
	v := TransferView{ID: t.id, Outcome: t.outcome, Phase: t.Context().Phase().String()}
	if t.req != nil {
		v.TransactionID = t.req.TransactionID
		v.From = t.req.From
		v.To = t.req.To
		v.Amount = t.req.Amount
	}
	return v
}
