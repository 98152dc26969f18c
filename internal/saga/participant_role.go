package saga

import (
	"errors"
	"slices"
)

// ParticipantRole stages preparations during precommit and releases them on
// commit or rollback.
//
// The role only tracks staged preparations. Applying the effect of a commit
// is the owning entity's job: it folds PreparationCommitted records into its
// own state.
type ParticipantRole struct {
	self      ParticipantInfo
	supported []PreparationKind
	policy    AdmissionPolicy
	annotator Annotator
	ledger    PreparationLedger
}

// NewParticipantRole creates a participant supporting the given kinds. A nil
// policy admits everything. The annotator may be nil.
func NewParticipantRole(selfID string, supported []PreparationKind, policy AdmissionPolicy, annotator Annotator) *ParticipantRole {
	if policy == nil {
		policy = AdmitAll
	}
	return &ParticipantRole{
		self:      NewParticipant(selfID),
		supported: slices.Clone(supported),
		policy:    policy,
		annotator: annotator,
	}
}

// Self returns the participant's identity.
func (r *ParticipantRole) Self() ParticipantInfo { return r.self }

// Supports reports whether kind may be staged here.
func (r *ParticipantRole) Supports(kind PreparationKind) bool {
	return slices.Contains(r.supported, kind)
}

// SupportedKinds returns the supported preparation kinds.
func (r *ParticipantRole) SupportedKinds() []PreparationKind {
	return slices.Clone(r.supported)
}

// Ledger exposes the staged preparations for queries.
func (r *ParticipantRole) Ledger() *PreparationLedger { return &r.ledger }

// PreCommit stages p. Redelivering an identical preparation is a no-op.
func (r *ParticipantRole) PreCommit(p *Preparation) ([]Record, error) {
	if err := r.validate(p); err != nil {
		return nil, err
	}
	return r.stage(*p)
}

func (r *ParticipantRole) validate(p *Preparation) error {
	if p == nil {
		return newError(CodeInvalidArgument, r.self.ParticipantID, TransactionRef{}, "preparation is required")
	}
	ref := p.Ref()
	switch {
	case p.TransactionID == "":
		return newError(CodeInvalidArgument, r.self.ParticipantID, ref, "preparation has no transaction id")
	case p.TransactionType == NoTransaction:
		return newError(CodeInvalidArgument, r.self.ParticipantID, ref, "preparation has no transaction type")
	case p.Kind == "":
		return newError(CodeInvalidArgument, r.self.ParticipantID, ref, "preparation has no kind")
	case !r.Supports(p.Kind):
		return newError(CodeUnsupportedPreparation, r.self.ParticipantID, ref, "preparation kind %q is not supported", p.Kind)
	}
	return nil
}

func (r *ParticipantRole) stage(p Preparation) ([]Record, error) {
	ref := p.Ref()
	if existing, ok := r.ledger.Get(p.TransactionID); ok {
		if existing.Equal(p) {
			return nil, nil
		}
		return nil, newError(CodePreparationConflict, r.self.ParticipantID, ref,
			"a different %q preparation is already staged for this transaction", existing.Kind)
	}
	if err := r.policy.Admit(&r.ledger, p); err != nil {
		var se *Error
		if errors.As(err, &se) {
			return nil, err
		}
		rejected := newError(CodePreparationRejected, r.self.ParticipantID, ref, "%s preparation rejected", p.Kind)
		rejected.Err = err
		return nil, rejected
	}

	rec := &PreparationStaged{Header: header(ref), Participant: r.self, Preparation: p.Clone()}
	return annotate(r.annotator, []Record{rec}), nil
}

// Commit releases the preparation initiator staged for txID as committed.
func (r *ParticipantRole) Commit(txID, initiator string) ([]Record, error) {
	p, err := r.lookup(txID, initiator)
	if err != nil {
		return nil, err
	}
	rec := &PreparationCommitted{Header: header(p.Ref()), Participant: r.self, Preparation: p.Clone()}
	return annotate(r.annotator, []Record{rec}), nil
}

// Rollback releases the preparation initiator staged for txID as rolled
// back.
func (r *ParticipantRole) Rollback(txID, initiator string) ([]Record, error) {
	p, err := r.lookup(txID, initiator)
	if err != nil {
		return nil, err
	}
	rec := &PreparationRolledBack{Header: header(p.Ref()), Participant: r.self, Preparation: p.Clone()}
	return annotate(r.annotator, []Record{rec}), nil
}

// lookup treats a preparation staged by another initiator under the same
// transaction id as absent.
func (r *ParticipantRole) lookup(txID, initiator string) (Preparation, error) {
	ref := TransactionRef{ID: txID}
	if txID == "" {
		return Preparation{}, newError(CodeInvalidArgument, r.self.ParticipantID, ref, "transaction id is required")
	}
	p, ok := r.ledger.Get(txID)
	if !ok {
		return Preparation{}, newError(CodePreparationNotFound, r.self.ParticipantID, ref, "no preparation staged")
	}
	if p.Initiator != initiator {
		return Preparation{}, newError(CodePreparationNotFound, r.self.ParticipantID, ref,
			"no preparation staged by %q", initiator)
	}
	return p, nil
}

// Apply folds rec into the ledger. It reports false for records that do not
// belong to a participant.
func (r *ParticipantRole) Apply(rec Record) (bool, error) {
	switch v := rec.(type) {
	case *PreparationStaged:
		if !r.ledger.add(v.Preparation) {
			return true, newError(CodeCorruptHistory, r.self.ParticipantID, v.Ref(), "preparation staged twice")
		}
	case *PreparationCommitted:
		if !r.ledger.remove(v.Preparation.TransactionID) {
			return true, newError(CodeCorruptHistory, r.self.ParticipantID, v.Ref(), "commit of unstaged preparation")
		}
	case *PreparationRolledBack:
		if !r.ledger.remove(v.Preparation.TransactionID) {
			return true, newError(CodeCorruptHistory, r.self.ParticipantID, v.Ref(), "rollback of unstaged preparation")
		}
	default:
		return false, nil
	}
	return true, nil
}
