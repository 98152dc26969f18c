package saga

// CombinedRole is an entity that initiates its own transactions and also
// takes part in others. It owns one InitiatorRole and one ParticipantRole
// under the same identity.
type CombinedRole struct {
	initiator   *InitiatorRole
	participant *ParticipantRole
}

// NewCombinedRole creates both roles for selfID.
func NewCombinedRole(selfID string, supported []PreparationKind, policy AdmissionPolicy, annotator Annotator) *CombinedRole {
	return &CombinedRole{
		initiator:   NewInitiatorRole(selfID, annotator),
		participant: NewParticipantRole(selfID, supported, policy, annotator),
	}
}

// Initiator returns the initiator half.
func (c *CombinedRole) Initiator() *InitiatorRole { return c.initiator }

// Participant returns the participant half.
func (c *CombinedRole) Participant() *ParticipantRole { return c.participant }

// StartTransaction rejects a participant list containing this entity.
func (c *CombinedRole) StartTransaction(txID string, txType TransactionType, participants []ParticipantInfo) ([]Record, error) {
	self := c.initiator.Self()
	if self.ExistsIn(participants) {
		return nil, newError(CodeSelfParticipation, self.ParticipantID, TransactionRef{ID: txID, Type: txType},
			"%s cannot take part in its own transaction", self)
	}
	return c.initiator.StartTransaction(txID, txType, participants)
}

// PreCommit refuses to stage while this entity's own transaction is in
// progress.
func (c *CombinedRole) PreCommit(p *Preparation) ([]Record, error) {
	if err := c.participant.validate(p); err != nil {
		return nil, err
	}
	if c.initiator.InTransaction() {
		return nil, newError(CodeAlreadyInTransaction, c.participant.self.ParticipantID, p.Ref(),
			"busy initiating transaction %s", c.initiator.ctx.TransactionID)
	}
	return c.participant.stage(*p)
}

// Commit delegates to the participant role.
func (c *CombinedRole) Commit(txID, initiator string) ([]Record, error) {
	return c.participant.Commit(txID, initiator)
}

// Rollback delegates to the participant role.
func (c *CombinedRole) Rollback(txID, initiator string) ([]Record, error) {
	return c.participant.Rollback(txID, initiator)
}

func (c *CombinedRole) AddPreCommitSucceeded(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error) {
	return c.initiator.AddPreCommitSucceeded(txID, txType, p)
}

func (c *CombinedRole) AddPreCommitFailed(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error) {
	return c.initiator.AddPreCommitFailed(txID, txType, p)
}

func (c *CombinedRole) AddCommitted(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error) {
	return c.initiator.AddCommitted(txID, txType, p)
}

func (c *CombinedRole) AddRolledback(txID string, txType TransactionType, p ParticipantInfo) ([]Record, error) {
	return c.initiator.AddRolledback(txID, txType, p)
}

// Apply routes rec to whichever half owns its kind.
func (c *CombinedRole) Apply(rec Record) (bool, error) {
	if ok, err := c.initiator.Apply(rec); ok {
		return true, err
	}
	return c.participant.Apply(rec)
}

var (
	_ TransactionInitiator   = (*InitiatorRole)(nil)
	_ TransactionParticipant = (*ParticipantRole)(nil)
	_ TransactionInitiator   = (*CombinedRole)(nil)
	_ TransactionParticipant = (*CombinedRole)(nil)
)
