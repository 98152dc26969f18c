package saga

// Phase is the initiator's position in the protocol.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingPreCommit
	PhasePreCommitResolved
	PhaseAwaitingFinalization
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingPreCommit:
		return "awaiting_precommit"
	case PhasePreCommitResolved:
		return "precommit_resolved"
	case PhaseAwaitingFinalization:
		return "awaiting_finalization"
	default:
		return "unknown"
	}
}

// TransactionContext is the initiator's state for its current transaction.
// The zero value is the Idle state.
type TransactionContext struct {
	TransactionID   string
	TransactionType TransactionType
	All             []ParticipantInfo
	Succeeded       []ParticipantInfo
	Failed          []ParticipantInfo
	Committed       []ParticipantInfo
	RolledBack      []ParticipantInfo
}

// InTransaction reports whether a transaction is in progress.
func (c TransactionContext) InTransaction() bool {
	return c.TransactionType != NoTransaction
}

// PreCommitResolved reports whether every participant has reported its
// precommit result.
func (c TransactionContext) PreCommitResolved() bool {
	return c.InTransaction() && len(c.Succeeded)+len(c.Failed) == len(c.All)
}

// Phase derives the protocol phase from the lists.
func (c TransactionContext) Phase() Phase {
	switch {
	case !c.InTransaction():
		return PhaseIdle
	case !c.PreCommitResolved():
		return PhaseAwaitingPreCommit
	case len(c.Committed)+len(c.RolledBack) == 0:
		return PhasePreCommitResolved
	default:
		return PhaseAwaitingFinalization
	}
}

// Ref returns the current transaction reference.
func (c TransactionContext) Ref() TransactionRef {
	return TransactionRef{ID: c.TransactionID, Type: c.TransactionType}
}

func (c TransactionContext) clone() TransactionContext {
	c.All = cloneParticipants(c.All)
	c.Succeeded = cloneParticipants(c.Succeeded)
	c.Failed = cloneParticipants(c.Failed)
	c.Committed = cloneParticipants(c.Committed)
	c.RolledBack = cloneParticipants(c.RolledBack)
	return c
}

// InitiatorRole drives one transaction at a time from start to completion.
//
// Handlers validate and return records; they never change the role. Apply is
// the only way state changes, so a role rebuilt from its history is identical
// to the one that produced it.
type InitiatorRole struct {
	self      ParticipantInfo
	annotator Annotator
	ctx       TransactionContext
}

// NewInitiatorRole creates an idle initiator. selfID is the owning entity's
// identity and may not appear among its own participants. The annotator may
// be nil.
func NewInitiatorRole(selfID string, annotator Annotator) *InitiatorRole {
	return &InitiatorRole{self: NewParticipant(selfID), annotator: annotator}
}

// Self returns the owning entity's identity.
func (r *InitiatorRole) Self() ParticipantInfo { return r.self }

// Context returns a copy of the current transaction context.
func (r *InitiatorRole) Context() TransactionContext { return r.ctx.clone() }

// InTransaction reports whether a transaction is in progress.
func (r *InitiatorRole) InTransaction() bool { return r.ctx.InTransaction() }

// StartTransaction opens a transaction over participants. txID may be empty,
// in which case the id of the first precommit result is adopted.
func (r *InitiatorRole) StartTransaction(txID string, txType TransactionType, participants []ParticipantInfo) ([]Record, error) {
	ref := TransactionRef{ID: txID, Type: txType}
	if r.ctx.InTransaction() {
		return nil, newError(CodeAlreadyInTransaction, r.self.ParticipantID, r.ctx.Ref(),
			"cannot start a transaction while another is in progress")
	}
	if txType == NoTransaction {
		return nil, newError(CodeInvalidArgument, r.self.ParticipantID, ref, "transaction type must be non-zero")
	}
	if len(participants) == 0 {
		return nil, newError(CodeInvalidTransaction, r.self.ParticipantID, ref, "participant list is empty")
	}
	for i, p := range participants {
		if p.IsZero() {
			return nil, newError(CodeInvalidArgument, r.self.ParticipantID, ref, "participant %d has no id", i)
		}
	}
	if HasDuplicates(participants) {
		return nil, newError(CodeInvalidTransaction, r.self.ParticipantID, ref, "participant list contains duplicates")
	}
	if !r.self.IsZero() && r.self.ExistsIn(participants) {
		return nil, newError(CodeInvalidTransaction, r.self.ParticipantID, ref, "initiator %s cannot be its own participant", r.self)
	}

	rec := &TransactionStarted{Header: header(ref), Participants: cloneParticipants(participants)}
	return annotate(r.annotator, []Record{rec}), nil
}

// AddPreCommitSucceeded records a successful precommit report.
func (r *InitiatorRole) AddPreCommitSucceeded(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error) {
	return r.addPreCommitResult(txID, txType, p, true)
}

// AddPreCommitFailed records a failed precommit report.
func (r *InitiatorRole) AddPreCommitFailed(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error) {
	return r.addPreCommitResult(txID, txType, p, false)
}

// AddCommitted records a participant's commit.
func (r *InitiatorRole) AddCommitted(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error) {
	return r.addFinalizationResult(txID, txType, p, true)
}

// AddRolledback records a participant's rollback.
func (r *InitiatorRole) AddRolledback(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error) {
	return r.addFinalizationResult(txID, txType, p, false)
}

func (r *InitiatorRole) addPreCommitResult(txID string, txType TransactionType, p ParticipantInfo, succeeded bool) ([]Record, error) {
	if err := r.checkReport(txID, txType, p); err != nil {
		return nil, err
	}
	// Unknown and already-reported participants are dropped so that
	// redelivered reports are harmless.
	if !p.ExistsIn(r.ctx.All) || p.ExistsIn(r.ctx.Succeeded, r.ctx.Failed) {
		return nil, nil
	}

	h := header(TransactionRef{ID: txID, Type: txType})
	var added Record
	if succeeded {
		added = &PreCommitSucceededParticipantAdded{Header: h, Participant: p}
	} else {
		added = &PreCommitFailedParticipantAdded{Header: h, Participant: p}
	}

	draft := r.ctx.clone()
	if err := foldInitiator(&draft, added); err != nil {
		return nil, err
	}
	recs := []Record{added}
	switch {
	case len(draft.Succeeded) == len(draft.All):
		recs = append(recs, &AllParticipantsPreCommitSucceeded{
			Header:       h,
			Participants: cloneParticipants(draft.Succeeded),
		})
	case draft.PreCommitResolved():
		recs = append(recs, &AnyParticipantPreCommitFailed{
			Header:    h,
			Succeeded: cloneParticipants(draft.Succeeded),
			Failed:    cloneParticipants(draft.Failed),
		})
	}
	return annotate(r.annotator, recs), nil
}

func (r *InitiatorRole) addFinalizationResult(txID string, txType TransactionType, p ParticipantInfo, committed bool) ([]Record, error) {
	if err := r.checkReport(txID, txType, p); err != nil {
		return nil, err
	}
	ref := TransactionRef{ID: txID, Type: txType}
	if !r.ctx.PreCommitResolved() {
		return nil, newError(CodePreCommitIncomplete, r.self.ParticipantID, ref,
			"%d of %d participants have reported precommit", len(r.ctx.Succeeded)+len(r.ctx.Failed), len(r.ctx.All))
	}
	if !p.ExistsIn(r.ctx.All) || p.ExistsIn(r.ctx.Committed, r.ctx.RolledBack) {
		return nil, nil
	}

	h := header(ref)
	var added Record
	if committed {
		added = &CommittedParticipantAdded{Header: h, Participant: p}
	} else {
		added = &RolledbackParticipantAdded{Header: h, Participant: p}
	}

	draft := r.ctx.clone()
	if err := foldInitiator(&draft, added); err != nil {
		return nil, err
	}
	recs := []Record{added}
	if len(draft.Committed)+len(draft.RolledBack) == len(draft.All) {
		recs = append(recs, &TransactionCompleted{Header: h, IsCommitSuccess: len(draft.RolledBack) == 0})
	}
	return annotate(r.annotator, recs), nil
}

// checkReport applies the validation shared by every result report, in order:
// arguments, in-transaction, type, then id.
func (r *InitiatorRole) checkReport(txID string, txType TransactionType, p ParticipantInfo) error {
	ref := TransactionRef{ID: txID, Type: txType}
	switch {
	case txID == "":
		return newError(CodeInvalidArgument, r.self.ParticipantID, ref, "transaction id is required")
	case txType == NoTransaction:
		return newError(CodeInvalidArgument, r.self.ParticipantID, ref, "transaction type must be non-zero")
	case p.IsZero():
		return newError(CodeInvalidArgument, r.self.ParticipantID, ref, "participant is required")
	case !r.ctx.InTransaction():
		return newError(CodeNotInTransaction, r.self.ParticipantID, ref, "no transaction in progress")
	case txType != r.ctx.TransactionType:
		return newError(CodeTransactionMismatch, r.self.ParticipantID, ref,
			"transaction type %d does not match current type %d", txType, r.ctx.TransactionType)
	case r.ctx.TransactionID != "" && txID != r.ctx.TransactionID:
		return newError(CodeTransactionMismatch, r.self.ParticipantID, ref,
			"transaction id does not match current id %s", r.ctx.TransactionID)
	}
	return nil
}

// Apply folds rec into the role. It reports false for records that do not
// belong to an initiator.
func (r *InitiatorRole) Apply(rec Record) (bool, error) {
	if !isInitiatorKind(rec.RecordKind()) {
		return false, nil
	}
	if err := foldInitiator(&r.ctx, rec); err != nil {
		if se, ok := err.(*Error); ok {
			se.EntityID = r.self.ParticipantID
		}
		return true, err
	}
	return true, nil
}

func isInitiatorKind(kind RecordKind) bool {
	switch kind {
	case KindTransactionStarted,
		KindPreCommitSucceededParticipantAdded,
		KindPreCommitFailedParticipantAdded,
		KindAllParticipantsPreCommitSucceeded,
		KindAnyParticipantPreCommitFailed,
		KindCommittedParticipantAdded,
		KindRolledbackParticipantAdded,
		KindTransactionCompleted:
		return true
	}
	return false
}

func foldInitiator(c *TransactionContext, rec Record) error {
	if started, ok := rec.(*TransactionStarted); ok {
		if c.InTransaction() {
			return newError(CodeCorruptHistory, "", started.Ref(), "transaction started while %s is in progress", c.TransactionID)
		}
		*c = TransactionContext{
			TransactionID:   started.TransactionID,
			TransactionType: started.TransactionType,
			All:             cloneParticipants(started.Participants),
		}
		return nil
	}

	tr, ok := rec.(TransactionRecord)
	if !ok {
		return newError(CodeCorruptHistory, "", TransactionRef{}, "unexpected record %T", rec)
	}
	ref := tr.TransactionHeader().Ref()
	if !c.InTransaction() {
		return newError(CodeCorruptHistory, "", ref, "%s while idle", rec.RecordKind())
	}

	switch v := rec.(type) {
	case *PreCommitSucceededParticipantAdded:
		c.adoptID(v.TransactionID)
		c.Succeeded = append(c.Succeeded, v.Participant)
	case *PreCommitFailedParticipantAdded:
		c.adoptID(v.TransactionID)
		c.Failed = append(c.Failed, v.Participant)
	case *AllParticipantsPreCommitSucceeded, *AnyParticipantPreCommitFailed:
		// Signals only; the lists already reflect them.
	case *CommittedParticipantAdded:
		c.Committed = append(c.Committed, v.Participant)
	case *RolledbackParticipantAdded:
		c.RolledBack = append(c.RolledBack, v.Participant)
	case *TransactionCompleted:
		*c = TransactionContext{}
	default:
		return newError(CodeCorruptHistory, "", ref, "unexpected record %T", rec)
	}
	return nil
}

func (c *TransactionContext) adoptID(txID string) {
	if c.TransactionID == "" {
		c.TransactionID = txID
	}
}
