// Package harness runs bank scenarios against the real dispatcher.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: transfer_commits
//	description: "A funded transfer commits on both sides"
//	redelivery: 1          # optional: re-execute protocol commands
//	max_steps: 0           # optional: per-transaction step budget
//	accounts:
//	  - { id: A, balance: 100 }
//	  - { id: B }
//	steps:
//	  - transfer: { id: T1, from: A, to: B, amount: 30 }
//	  - collect: { account: A, sources: [B], amount: 5 }
//	    hold: true         # leave follow-ups queued for the next step
//	  - stage: { account: B, initiator: transfer/T1, transaction: tx-1, type: transfer, kind: debit, amount: 5 }
//	    error: ALREADY_IN_TRANSACTION
//	  - report: { initiator: transfer/T1, transaction: tx-1, type: transfer, participant: A, phase: precommit, success: true }
//	expect:
//	  balances: { A: 70, B: 30 }
//	  transfers: { T1: committed }
//	  signals: { TransactionCompleted: 1 }
//
// # Determinism
//
// Every run gets a fresh in-memory store, transaction ids tx-1, tx-2, ...
// in request order, and a logical clock starting at zero, so the trace of
// a scenario is byte-for-byte stable and can be compared to a golden file.
package harness
