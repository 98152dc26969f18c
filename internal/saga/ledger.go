package saga

import (
	"github.com/roach88/eventual2pc/internal/ir"
)

// PreparationKind names a kind of staged change, e.g. "debit".
type PreparationKind string

// Preparation is the participant-side record of intent staged during
// precommit. Args carries the domain payload. Initiator names whoever asked
// for the preparation; only that initiator may release it.
type Preparation struct {
	TransactionID   string          `json:"transaction_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Initiator       string          `json:"initiator,omitempty"`
	Kind            PreparationKind `json:"kind"`
	Args            ir.IRObject     `json:"args,omitempty"`
}

// Ref returns the transaction the preparation belongs to.
func (p Preparation) Ref() TransactionRef {
	return TransactionRef{ID: p.TransactionID, Type: p.TransactionType}
}

// Equal reports whether two preparations carry the same content.
func (p Preparation) Equal(other Preparation) bool {
	return p.TransactionID == other.TransactionID &&
		p.TransactionType == other.TransactionType &&
		p.Initiator == other.Initiator &&
		p.Kind == other.Kind &&
		ir.Equal(p.Args, other.Args)
}

// Clone returns a deep copy.
func (p Preparation) Clone() Preparation {
	p.Args = p.Args.Clone()
	return p
}

// PreparationLedger holds at most one staged preparation per transaction id.
// Listing follows staging order. The zero value is empty and ready to use.
type PreparationLedger struct {
	entries map[string]Preparation
	order   []string
}

// Get returns the preparation staged for txID.
func (l *PreparationLedger) Get(txID string) (Preparation, bool) {
	p, ok := l.entries[txID]
	return p, ok
}

// ByKind returns the staged preparations of one kind.
func (l *PreparationLedger) ByKind(kind PreparationKind) []Preparation {
	out := []Preparation{}
	for _, id := range l.order {
		if p := l.entries[id]; p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// All returns every staged preparation.
func (l *PreparationLedger) All() []Preparation {
	out := make([]Preparation, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id])
	}
	return out
}

// HasKind reports whether any preparation of kind is staged.
func (l *PreparationLedger) HasKind(kind PreparationKind) bool {
	for _, p := range l.entries {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

// Len returns the number of staged preparations.
func (l *PreparationLedger) Len() int {
	return len(l.order)
}

func (l *PreparationLedger) add(p Preparation) bool {
	if _, ok := l.entries[p.TransactionID]; ok {
		return false
	}
	if l.entries == nil {
		l.entries = make(map[string]Preparation)
	}
	l.entries[p.TransactionID] = p.Clone()
	l.order = append(l.order, p.TransactionID)
	return true
}

func (l *PreparationLedger) remove(txID string) bool {
	if _, ok := l.entries[txID]; !ok {
		return false
	}
	delete(l.entries, txID)
	for i, id := range l.order {
		if id == txID {
			l.order = append(l.order[:i:i], l.order[i+1:]...)
			break
		}
	}
	return true
}
