package saga

import (
	"github.com/roach88/eventual2pc/internal/ir"
)

// TransactionType is a small domain-defined tag. Zero means no transaction.
type TransactionType uint8

// NoTransaction is the type of an idle initiator.
const NoTransaction TransactionType = 0

// TransactionRef identifies a transaction instance.
type TransactionRef struct {
	ID   string
	Type TransactionType
}

// RecordKind names a transition record. Kinds are persisted and must not
// change once released.
type RecordKind string

const (
	KindTransactionStarted                 RecordKind = "TransactionStarted"
	KindPreCommitSucceededParticipantAdded RecordKind = "PreCommitSucceededParticipantAdded"
	KindPreCommitFailedParticipantAdded    RecordKind = "PreCommitFailedParticipantAdded"
	KindAllParticipantsPreCommitSucceeded  RecordKind = "AllParticipantsPreCommitSucceeded"
	KindAnyParticipantPreCommitFailed      RecordKind = "AnyParticipantPreCommitFailed"
	KindCommittedParticipantAdded          RecordKind = "CommittedParticipantAdded"
	KindRolledbackParticipantAdded         RecordKind = "RolledbackParticipantAdded"
	KindTransactionCompleted               RecordKind = "TransactionCompleted"

	KindPreparationStaged     RecordKind = "PreparationStaged"
	KindPreparationCommitted  RecordKind = "PreparationCommitted"
	KindPreparationRolledBack RecordKind = "PreparationRolledBack"
)

// Record is an immutable transition record.
type Record interface {
	RecordKind() RecordKind
}

// TransactionRecord is a record emitted by one of the saga roles.
type TransactionRecord interface {
	Record
	TransactionHeader() Header
}

// Header is embedded in every saga record.
type Header struct {
	TransactionID   string          `json:"transaction_id,omitempty"`
	TransactionType TransactionType `json:"transaction_type"`
	Annotations     ir.IRObject     `json:"annotations,omitempty"`
}

// TransactionHeader returns the header.
func (h Header) TransactionHeader() Header { return h }

// Ref returns the transaction the record belongs to.
func (h Header) Ref() TransactionRef {
	return TransactionRef{ID: h.TransactionID, Type: h.TransactionType}
}

func (h *Header) annotate(a ir.IRObject) { h.Annotations = a }

func header(ref TransactionRef) Header {
	return Header{TransactionID: ref.ID, TransactionType: ref.Type}
}

// TransactionStarted opens a transaction with a fixed participant list.
type TransactionStarted struct {
	Header
	Participants []ParticipantInfo `json:"participants"`
}

// PreCommitSucceededParticipantAdded records one successful precommit.
type PreCommitSucceededParticipantAdded struct {
	Header
	Participant ParticipantInfo `json:"participant"`
}

// PreCommitFailedParticipantAdded records one failed precommit.
type PreCommitFailedParticipantAdded struct {
	Header
	Participant ParticipantInfo `json:"participant"`
}

// AllParticipantsPreCommitSucceeded signals that every participant staged
// its preparation. Participants is the succeeded list.
type AllParticipantsPreCommitSucceeded struct {
	Header
	Participants []ParticipantInfo `json:"participants"`
}

// AnyParticipantPreCommitFailed signals that every participant reported and
// at least one failed.
type AnyParticipantPreCommitFailed struct {
	Header
	Succeeded []ParticipantInfo `json:"succeeded,omitempty"`
	Failed    []ParticipantInfo `json:"failed"`
}

// CommittedParticipantAdded records one participant's commit.
type CommittedParticipantAdded struct {
	Header
	Participant ParticipantInfo `json:"participant"`
}

// RolledbackParticipantAdded records one participant's rollback.
type RolledbackParticipantAdded struct {
	Header
	Participant ParticipantInfo `json:"participant"`
}

// TransactionCompleted closes the transaction. Folding it returns the
// initiator to Idle.
type TransactionCompleted struct {
	Header
	IsCommitSuccess bool `json:"is_commit_success"`
}

// PreparationStaged records a participant staging a preparation.
type PreparationStaged struct {
	Header
	Participant ParticipantInfo `json:"participant"`
	Preparation Preparation     `json:"preparation"`
}

// PreparationCommitted records a participant applying a staged preparation.
type PreparationCommitted struct {
	Header
	Participant ParticipantInfo `json:"participant"`
	Preparation Preparation     `json:"preparation"`
}

// PreparationRolledBack records a participant discarding a staged
// preparation.
type PreparationRolledBack struct {
	Header
	Participant ParticipantInfo `json:"participant"`
	Preparation Preparation     `json:"preparation"`
}

func (*TransactionStarted) RecordKind() RecordKind { return KindTransactionStarted }
func (*PreCommitSucceededParticipantAdded) RecordKind() RecordKind {
	return KindPreCommitSucceededParticipantAdded
}
func (*PreCommitFailedParticipantAdded) RecordKind() RecordKind {
	return KindPreCommitFailedParticipantAdded
}
func (*AllParticipantsPreCommitSucceeded) RecordKind() RecordKind {
	return KindAllParticipantsPreCommitSucceeded
}
func (*AnyParticipantPreCommitFailed) RecordKind() RecordKind {
	return KindAnyParticipantPreCommitFailed
}
func (*CommittedParticipantAdded) RecordKind() RecordKind  { return KindCommittedParticipantAdded }
func (*RolledbackParticipantAdded) RecordKind() RecordKind { return KindRolledbackParticipantAdded }
func (*TransactionCompleted) RecordKind() RecordKind       { return KindTransactionCompleted }
func (*PreparationStaged) RecordKind() RecordKind          { return KindPreparationStaged }
func (*PreparationCommitted) RecordKind() RecordKind       { return KindPreparationCommitted }
func (*PreparationRolledBack) RecordKind() RecordKind      { return KindPreparationRolledBack }

// Kinds lists every record kind this package emits, in protocol order.
func Kinds() []RecordKind {
	return []RecordKind{
		KindTransactionStarted,
		KindPreCommitSucceededParticipantAdded,
		KindPreCommitFailedParticipantAdded,
		KindAllParticipantsPreCommitSucceeded,
		KindAnyParticipantPreCommitFailed,
		KindCommittedParticipantAdded,
		KindRolledbackParticipantAdded,
		KindTransactionCompleted,
		KindPreparationStaged,
		KindPreparationCommitted,
		KindPreparationRolledBack,
	}
}

// New returns an empty record of the given kind, or nil if the kind is not
// a saga kind. Decoders use it as a factory.
func New(kind RecordKind) Record {
	switch kind {
	case KindTransactionStarted:
		return &TransactionStarted{}
	case KindPreCommitSucceededParticipantAdded:
		return &PreCommitSucceededParticipantAdded{}
	case KindPreCommitFailedParticipantAdded:
		return &PreCommitFailedParticipantAdded{}
	case KindAllParticipantsPreCommitSucceeded:
		return &AllParticipantsPreCommitSucceeded{}
	case KindAnyParticipantPreCommitFailed:
		return &AnyParticipantPreCommitFailed{}
	case KindCommittedParticipantAdded:
		return &CommittedParticipantAdded{}
	case KindRolledbackParticipantAdded:
		return &RolledbackParticipantAdded{}
	case KindTransactionCompleted:
		return &TransactionCompleted{}
	case KindPreparationStaged:
		return &PreparationStaged{}
	case KindPreparationCommitted:
		return &PreparationCommitted{}
	case KindPreparationRolledBack:
		return &PreparationRolledBack{}
	default:
		return nil
	}
}
