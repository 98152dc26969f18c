package bank

import (
	"fmt"

	"github.com/roach88/eventual2pc/internal/entity"
	"github.com/roach88/eventual2pc/internal/saga"
	"github.com/roach88/eventual2pc/internal/store"
)

// OpenAccount opens an account with an opening balance.
type OpenAccount struct {
	AccountID string
	Owner     string
	Balance   int64
}

func (c *OpenAccount) Name() string         { return "OpenAccount" }
func (c *OpenAccount) Target() store.Stream { return AccountStream(c.AccountID) }
func (c *OpenAccount) Handle(e entity.Entity) ([]saga.Record, error) {
	a, err := asAccount(e)
	if err != nil {
		return nil, err
	}
	return a.Open(c.Owner, c.Balance)
}

// StartTransfer requests a transfer and starts its transaction.
type StartTransfer struct {
	TransferID    string
	TransactionID string
	Type          saga.TransactionType
	From          string
	To            string
	Amount        int64
}

func (c *StartTransfer) Name() string         { return "StartTransfer" }
func (c *StartTransfer) Target() store.Stream { return TransferStream(c.TransferID) }
func (c *StartTransfer) Handle(e entity.Entity) ([]saga.Record, error) {
	t, ok := e.(*Transfer)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a transfer", ErrWrongEntity, e)
	}
	return t.Start(c.TransactionID, c.Type, c.From, c.To, c.Amount)
}

// StartCollect starts a collect initiated by AccountID.
type StartCollect struct {
	AccountID     string
	TransactionID string
	Type          saga.TransactionType
	Sources       []string
	Amount        int64
}

func (c *StartCollect) Name() string         { return "StartCollect" }
func (c *StartCollect) Target() store.Stream { return AccountStream(c.AccountID) }
func (c *StartCollect) Handle(e entity.Entity) ([]saga.Record, error) {
	a, err := asAccount(e)
	if err != nil {
		return nil, err
	}
	return a.StartCollect(c.TransactionID, c.Type, c.Sources, c.Amount)
}

// StartFreeze requests a freeze of AccountID and starts its transaction.
type StartFreeze struct {
	FreezeID      string
	TransactionID string
	Type          saga.TransactionType
	AccountID     string
}

func (c *StartFreeze) Name() string         { return "StartFreeze" }
func (c *StartFreeze) Target() store.Stream { return FreezeStream(c.FreezeID) }
func (c *StartFreeze) Handle(e entity.Entity) ([]saga.Record, error) {
	f, ok := e.(*Freeze)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a freeze", ErrWrongEntity, e)
	}
	return f.Start(c.TransactionID, c.Type, c.AccountID)
}

func asAccount(e entity.Entity) (*Account, error) {
	a, ok := e.(*Account)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an account", ErrWrongEntity, e)
	}
	return a, nil
}
