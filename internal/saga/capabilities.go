package saga

import (
	"github.com/roach88/eventual2pc/internal/ir"
)

// Annotator lets a concrete entity attach domain fields to every record a
// role emits on its behalf.
type Annotator interface {
	Annotate(kind RecordKind, ref TransactionRef) ir.IRObject
}

// AnnotatorFunc adapts a function to Annotator.
type AnnotatorFunc func(kind RecordKind, ref TransactionRef) ir.IRObject

// Annotate calls f.
func (f AnnotatorFunc) Annotate(kind RecordKind, ref TransactionRef) ir.IRObject {
	return f(kind, ref)
}

// AdmissionPolicy decides whether p may be staged next to what the ledger
// already holds. Returning an error refuses the preparation; the error is
// reported as PREPARATION_REJECTED with the cause preserved.
type AdmissionPolicy interface {
	Admit(staged *PreparationLedger, p Preparation) error
}

// AdmitFunc adapts a function to AdmissionPolicy.
type AdmitFunc func(staged *PreparationLedger, p Preparation) error

// Admit calls f.
func (f AdmitFunc) Admit(staged *PreparationLedger, p Preparation) error {
	return f(staged, p)
}

// AdmitAll admits every preparation.
var AdmitAll AdmissionPolicy = AdmitFunc(func(*PreparationLedger, Preparation) error { return nil })

// TransactionInitiator is the command surface of an entity that initiates
// transactions. Each method returns the records to append.
type TransactionInitiator interface {
	AddPreCommitSucceeded(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error)
	AddPreCommitFailed(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error)
	AddCommitted(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error)
	AddRolledback(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error)
}

// TransactionParticipant is the command surface of an entity that takes part
// in transactions.
type TransactionParticipant interface {
	PreCommit(p *Preparation) ([]Record, error)
	Commit(txID, initiator string) ([]Record, error)
	Rollback(txID, initiator string) ([]Record, error)
}

func annotate(a Annotator, recs []Record) []Record {
	if a == nil {
		return recs
	}
	for _, r := range recs {
		tr, ok := r.(interface {
			TransactionRecord
			annotate(ir.IRObject)
		})
		if !ok {
			continue
		}
		h := tr.TransactionHeader()
		if fields := a.Annotate(r.RecordKind(), h.Ref()); len(fields) > 0 {
			tr.annotate(fields)
		}
	}
	return recs
}

// PlannedPreparation pairs a participant with the preparation it is asked
// to stage.
type PlannedPreparation struct {
	Participant ParticipantInfo
	Preparation Preparation
}

// Planner is implemented by initiators that know what each participant of a
// freshly started transaction must stage.
type Planner interface {
	PlanPreparations(started *TransactionStarted) ([]PlannedPreparation, error)
}
