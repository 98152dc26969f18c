// Package saga implements the eventual two-phase-commit protocol as pure,
// event-sourced state machines.
//
// An InitiatorRole tracks a fixed set of participants through a precommit
// phase and a finalization phase. A ParticipantRole stages preparations and
// releases them on commit or rollback. A CombinedRole is an entity that plays
// both parts.
//
// Every operation is split in two: a handler validates a command against the
// current state and returns transition records without mutating anything, and
// Apply folds a record into state. State is therefore always the fold of the
// record history, and replaying the same history yields the same state.
package saga
