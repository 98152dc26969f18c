package dispatch

import (
	"fmt"

	"github.com/roach88/eventual2pc/internal/entity"
	"github.com/roach88/eventual2pc/internal/saga"
	"github.com/roach88/eventual2pc/internal/store"
)

// Command is one unit of work against a single stream. Handle runs against
// a freshly loaded entity and must not mutate it.
type Command interface {
	Name() string
	Target() store.Stream
	Handle(e entity.Entity) ([]saga.Record, error)
}

// Protocol command names.
const (
	CommandStage                    = "Stage"
	CommandReportPreCommitResult    = "ReportPreCommitResult"
	CommandFinalize                 = "Finalize"
	CommandReportFinalizationResult = "ReportFinalizationResult"
)

// protocolCommand marks the commands the dispatcher generates itself.
// Only these are redelivered and counted against a transaction's step
// budget.
type protocolCommand interface {
	Command
	transaction() string
}

// Stage asks a participant to stage a preparation on behalf of Initiator.
type Stage struct {
	Participant saga.ParticipantInfo
	Stream      store.Stream
	Initiator   store.Stream
	Preparation saga.Preparation
}

func (c *Stage) Name() string         { return CommandStage }
func (c *Stage) Target() store.Stream { return c.Stream }
func (c *Stage) transaction() string  { return c.Initiator.String() + "#" + c.Preparation.TransactionID }

func (c *Stage) Handle(e entity.Entity) ([]saga.Record, error) {
	p, err := asParticipant(e)
	if err != nil {
		return nil, err
	}
	prep := c.Preparation.Clone()
	prep.Initiator = c.Initiator.String()
	return p.PreCommit(&prep)
}

// Report builds the precommit report for the initiator.
func (c *Stage) Report(success bool, reason string) *ReportPreCommitResult {
	return &ReportPreCommitResult{
		Initiator:     c.Initiator,
		TransactionID: c.Preparation.TransactionID,
		Type:          c.Preparation.TransactionType,
		Participant:   c.Participant,
		Success:       success,
		Reason:        reason,
	}
}

// ReportPreCommitResult tells an initiator how a participant's precommit
// went. Reason is informational and not persisted.
type ReportPreCommitResult struct {
	Initiator     store.Stream
	TransactionID string
	Type          saga.TransactionType
	Participant   saga.ParticipantInfo
	Success       bool
	Reason        string
}

func (c *ReportPreCommitResult) Name() string         { return CommandReportPreCommitResult }
func (c *ReportPreCommitResult) Target() store.Stream { return c.Initiator }
func (c *ReportPreCommitResult) transaction() string {
	return c.Initiator.String() + "#" + c.TransactionID
}

func (c *ReportPreCommitResult) Handle(e entity.Entity) ([]saga.Record, error) {
	ini, err := asInitiator(e)
	if err != nil {
		return nil, err
	}
	if c.Success {
		return ini.AddPreCommitSucceeded(c.TransactionID, c.Type, c.Participant)
	}
	return ini.AddPreCommitFailed(c.TransactionID, c.Type, c.Participant)
}

// Finalize asks a participant to commit or roll back the preparation
// Initiator staged there.
type Finalize struct {
	Participant   saga.ParticipantInfo
	Stream        store.Stream
	Initiator     store.Stream
	TransactionID string
	Type          saga.TransactionType
	Commit        bool
}

func (c *Finalize) Name() string         { return CommandFinalize }
func (c *Finalize) Target() store.Stream { return c.Stream }
func (c *Finalize) transaction() string  { return c.Initiator.String() + "#" + c.TransactionID }

func (c *Finalize) Handle(e entity.Entity) ([]saga.Record, error) {
	p, err := asParticipant(e)
	if err != nil {
		return nil, err
	}
	if c.Commit {
		return p.Commit(c.TransactionID, c.Initiator.String())
	}
	return p.Rollback(c.TransactionID, c.Initiator.String())
}

// Report builds the finalization report for the initiator.
func (c *Finalize) Report() *ReportFinalizationResult {
	return &ReportFinalizationResult{
		Initiator:     c.Initiator,
		TransactionID: c.TransactionID,
		Type:          c.Type,
		Participant:   c.Participant,
		Committed:     c.Commit,
	}
}

// ReportFinalizationResult tells an initiator that a participant committed
// or rolled back.
type ReportFinalizationResult struct {
	Initiator     store.Stream
	TransactionID string
	Type          saga.TransactionType
	Participant   saga.ParticipantInfo
	Committed     bool
}

func (c *ReportFinalizationResult) Name() string         { return CommandReportFinalizationResult }
func (c *ReportFinalizationResult) Target() store.Stream { return c.Initiator }
func (c *ReportFinalizationResult) transaction() string {
	return c.Initiator.String() + "#" + c.TransactionID
}

func (c *ReportFinalizationResult) Handle(e entity.Entity) ([]saga.Record, error) {
	ini, err := asInitiator(e)
	if err != nil {
		return nil, err
	}
	if c.Committed {
		return ini.AddCommitted(c.TransactionID, c.Type, c.Participant)
	}
	return ini.AddRolledback(c.TransactionID, c.Type, c.Participant)
}

func asParticipant(e entity.Entity) (saga.TransactionParticipant, error) {
	p, ok := e.(saga.TransactionParticipant)
	if !ok {
		return nil, fmt.Errorf("%T cannot take part in transactions", e)
	}
	return p, nil
}

func asInitiator(e entity.Entity) (saga.TransactionInitiator, error) {
	ini, ok := e.(saga.TransactionInitiator)
	if !ok {
		return nil, fmt.Errorf("%T cannot initiate transactions", e)
	}
	return ini, nil
}
