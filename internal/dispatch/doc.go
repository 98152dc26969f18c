// Package dispatch drives transactions between entities.
//
// The dispatcher is the delivery side of the saga protocol. Entities never
// talk to each other; they emit records, and the dispatcher turns those
// records into commands for other entities:
//
//	TransactionStarted                -> Stage, one per planned preparation
//	Stage handled or refused          -> ReportPreCommitResult to the initiator
//	AllParticipantsPreCommitSucceeded -> Finalize(commit), one per participant
//	AnyParticipantPreCommitFailed     -> Finalize(rollback), one per participant
//	Finalize handled                  -> ReportFinalizationResult to the initiator
//
// ARCHITECTURE:
//
// Commands are queued in FIFO order and processed by a single Run loop.
// Each command loads its target entity from the store, runs, and appends
// its records under optimistic concurrency, so Process may also be called
// from other goroutines (HTTP handlers) without corrupting a stream.
//
// Every processed command is stamped by a logical Clock and reported to the
// registered Observers. Wall-clock time is never used for ordering.
//
// Delivery is at-least-once. WithRedelivery replays every protocol command
// to exercise idempotent handling; duplicates never produce follow-ups.
package dispatch
