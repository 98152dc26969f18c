// Package bank is the reference domain for the saga roles.
//
// An Account is a combined initiator and participant: it stages debits,
// credits and freezes for other transactions and can start collect
// transactions of its own. A Transfer is a pure initiator that moves money
// between two accounts, and a Freeze is one that blocks a single account.
// Domain ties the entities to streams and plans what each participant stages
// when a transaction starts.
package bank
