package bank

import (
	"fmt"

	"github.com/roach88/eventual2pc/internal/catalog"
	"github.com/roach88/eventual2pc/internal/entity"
	"github.com/roach88/eventual2pc/internal/saga"
	"github.com/roach88/eventual2pc/internal/store"
)

// Stream types and catalog transaction names used by the domain.
const (
	StreamAccount  = "account"
	StreamTransfer = "transfer"
	StreamFreeze   = "freeze"

	TransactionTransfer = "transfer"
	TransactionCollect  = "collect"
	TransactionFreeze   = "freeze"
)

// AccountStream names the stream of account id. The id is NFC-normalized
// the same way participant ids are, so an account is always reachable as a
// participant.
func AccountStream(id string) store.Stream {
	return store.Stream{Type: StreamAccount, ID: saga.NewParticipant(id).ParticipantID}
}

// TransferStream names the stream of transfer id.
func TransferStream(id string) store.Stream {
	return store.Stream{Type: StreamTransfer, ID: id}
}

// FreezeStream names the stream of freeze id.
func FreezeStream(id string) store.Stream {
	return store.Stream{Type: StreamFreeze, ID: id}
}

// Domain maps streams to entities and builds domain commands against a
// catalog.
type Domain struct {
	catalog *catalog.Catalog
}

// NewDomain creates a domain over cat.
func NewDomain(cat *catalog.Catalog) *Domain {
	return &Domain{catalog: cat}
}

// Catalog returns the catalog in use.
func (d *Domain) Catalog() *catalog.Catalog { return d.catalog }

// NewEntity returns an empty entity for stream.
func (d *Domain) NewEntity(stream store.Stream) (entity.Entity, error) {
	switch stream.Type {
	case StreamAccount:
		return NewAccount(stream.ID, d.catalog), nil
	case StreamTransfer:
		return NewTransfer(stream.ID), nil
	case StreamFreeze:
		return NewFreeze(stream.ID), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStream, stream.Type)
	}
}

// ParticipantStream resolves a participant to its account stream.
func (d *Domain) ParticipantStream(p saga.ParticipantInfo) store.Stream {
	return AccountStream(p.ParticipantID)
}

// TransactionType looks up the tag of a catalog transaction kind.
func (d *Domain) TransactionType(name string) (saga.TransactionType, error) {
	tk, ok := d.catalog.Transaction(name)
	if !ok {
		return saga.NoTransaction, fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}
	return tk.Tag, nil
}

// StartTransfer builds the command that starts a transfer.
func (d *Domain) StartTransfer(transferID, txID, from, to string, amount int64) (*StartTransfer, error) {
	tag, err := d.TransactionType(TransactionTransfer)
	if err != nil {
		return nil, err
	}
	return &StartTransfer{
		TransferID:    transferID,
		TransactionID: txID,
		Type:          tag,
		From:          from,
		To:            to,
		Amount:        amount,
	}, nil
}

// StartCollect builds the command that starts a collect.
func (d *Domain) StartCollect(accountID, txID string, sources []string, amount int64) (*StartCollect, error) {
	tag, err := d.TransactionType(TransactionCollect)
	if err != nil {
		return nil, err
	}
	return &StartCollect{
		AccountID:     accountID,
		TransactionID: txID,
		Type:          tag,
		Sources:       sources,
		Amount:        amount,
	}, nil
}

// StartFreeze builds the command that starts a freeze of accountID.
func (d *Domain) StartFreeze(freezeID, txID, accountID string) (*StartFreeze, error) {
	tag, err := d.TransactionType(TransactionFreeze)
	if err != nil {
		return nil, err
	}
	return &StartFreeze{
		FreezeID:      freezeID,
		TransactionID: txID,
		Type:          tag,
		AccountID:     accountID,
	}, nil
}
