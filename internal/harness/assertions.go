package harness

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/saga"
)

// check compares the final state with exp and returns one message per
// mismatch, in a stable order.
func (h *Harness) check(ctx context.Context, exp Expectations) []string {
	var errs []string

	for _, id := range sortedKeys(exp.Balances) {
		a, err := h.account(ctx, id)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if got := a.Balance(); got != exp.Balances[id] {
			errs = append(errs, fmt.Sprintf("balance of %s: expected %d, got %d", id, exp.Balances[id], got))
		}
	}

	for _, id := range sortedKeys(exp.Transfers) {
		e, _, err := h.dispatcher.Load(ctx, bank.TransferStream(id))
		if err != nil {
			errs = append(errs, fmt.Sprintf("transfer %s: %v", id, err))
			continue
		}
		t := e.(*bank.Transfer)
		if t.Request() == nil {
			errs = append(errs, fmt.Sprintf("transfer %s: never requested", id))
			continue
		}
		if got := string(t.Outcome()); got != exp.Transfers[id] {
			errs = append(errs, fmt.Sprintf("outcome of transfer %s: expected %s, got %s", id, exp.Transfers[id], got))
		}
	}

	for _, id := range sortedKeys(exp.Freezes) {
		e, _, err := h.dispatcher.Load(ctx, bank.FreezeStream(id))
		if err != nil {
			errs = append(errs, fmt.Sprintf("freeze %s: %v", id, err))
			continue
		}
		f := e.(*bank.Freeze)
		if f.Request() == nil {
			errs = append(errs, fmt.Sprintf("freeze %s: never requested", id))
			continue
		}
		if got := string(f.Outcome()); got != exp.Freezes[id] {
			errs = append(errs, fmt.Sprintf("outcome of freeze %s: expected %s, got %s", id, exp.Freezes[id], got))
		}
	}

	for _, id := range exp.Frozen {
		a, err := h.account(ctx, id)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if !a.Frozen() {
			errs = append(errs, fmt.Sprintf("account %s: not frozen", id))
		}
	}

	if len(exp.Signals) > 0 {
		counts, err := h.store.CountByKind(ctx)
		if err != nil {
			errs = append(errs, fmt.Sprintf("count records: %v", err))
		} else {
			for _, kind := range sortedKeys(exp.Signals) {
				if got := counts[saga.RecordKind(kind)]; got != exp.Signals[kind] {
					errs = append(errs, fmt.Sprintf("%s records: expected %d, got %d", kind, exp.Signals[kind], got))
				}
			}
		}
	}

	for _, id := range exp.Idle {
		a, err := h.account(ctx, id)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if a.Initiator().InTransaction() {
			errs = append(errs, fmt.Sprintf("account %s: still initiating %s", id, a.Initiator().Context().TransactionID))
		}
		if n := a.Participant().Ledger().Len(); n > 0 {
			errs = append(errs, fmt.Sprintf("account %s: %d preparation(s) still staged", id, n))
		}
	}
	return errs
}

func (h *Harness) account(ctx context.Context, id string) (*bank.Account, error) {
	e, _, err := h.dispatcher.Load(ctx, bank.AccountStream(id))
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	a := e.(*bank.Account)
	if !a.Opened() {
		return nil, fmt.Errorf("account %s: not open", id)
	}
	return a, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
