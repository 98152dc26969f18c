package bank

import (
	"github.com/roach88/eventual2pc/internal/codec"
	"github.com/roach88/eventual2pc/internal/saga"
)

// Record kinds owned by the bank domain.
const (
	KindAccountOpened     saga.RecordKind = "AccountOpened"
	KindCollectRequested  saga.RecordKind = "CollectRequested"
	KindTransferRequested saga.RecordKind = "TransferRequested"
	KindFreezeRequested   saga.RecordKind = "FreezeRequested"
)

// AccountOpened creates an account with an opening balance.
type AccountOpened struct {
	AccountID string `json:"account_id"`
	Owner     string `json:"owner,omitempty"`
	Balance   int64  `json:"balance"`
}

// CollectRequested precedes the TransactionStarted of a collect. Each source
// is asked for Amount.
type CollectRequested struct {
	TransactionID string                 `json:"transaction_id"`
	Sources       []saga.ParticipantInfo `json:"sources"`
	Amount        int64                  `json:"amount"`
}

// TransferRequested precedes the TransactionStarted of a transfer.
type TransferRequested struct {
	TransferID    string `json:"transfer_id"`
	TransactionID string `json:"transaction_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        int64  `json:"amount"`
}

// FreezeRequested precedes the TransactionStarted of a freeze.
type FreezeRequested struct {
	FreezeID      string `json:"freeze_id"`
	TransactionID string `json:"transaction_id"`
	Account       string `json:"account"`
}

func (*AccountOpened) RecordKind() saga.RecordKind     { return KindAccountOpened }
func (*CollectRequested) RecordKind() saga.RecordKind  { return KindCollectRequested }
func (*TransferRequested) RecordKind() saga.RecordKind { return KindTransferRequested }
func (*FreezeRequested) RecordKind() saga.RecordKind   { return KindFreezeRequested }

// Register adds the bank record kinds to r.
func Register(r *codec.Registry) error {
	factories := map[saga.RecordKind]codec.Factory{
		KindAccountOpened:     func() saga.Record { return &AccountOpened{} },
		KindCollectRequested:  func() saga.Record { return &CollectRequested{} },
		KindTransferRequested: func() saga.Record { return &TransferRequested{} },
		KindFreezeRequested:   func() saga.Record { return &FreezeRequested{} },
	}
	for kind, f := range factories {
		if err := r.Register(kind, f); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry that decodes saga and bank records.
func NewRegistry() *codec.Registry {
	r := codec.DefaultRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
