package dispatch

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxSteps bounds the protocol commands processed for a single
// transaction. A well-behaved transaction over n participants needs about
// 4n steps.
const DefaultMaxSteps = 1000

// StepsExceededError stops a transaction whose protocol traffic runs away.
// Its pending follow-ups are dropped.
type StepsExceededError struct {
	Transaction string
	Steps       int
	Limit       int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("transaction %s exceeded max steps: %d steps > %d limit", e.Transaction, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err is a *StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}

// quotaTracker counts protocol steps per transaction.
type quotaTracker struct {
	mu       sync.Mutex
	maxSteps int
	steps    map[string]int
}

func newQuotaTracker(maxSteps int) *quotaTracker {
	return &quotaTracker{maxSteps: maxSteps, steps: make(map[string]int)}
}

// Check counts one step for tx and fails once the limit is passed.
func (q *quotaTracker) Check(tx string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.steps[tx]++
	if n := q.steps[tx]; n > q.maxSteps {
		return &StepsExceededError{Transaction: tx, Steps: n, Limit: q.maxSteps}
	}
	return nil
}

// Forget drops the counter of a completed transaction.
func (q *quotaTracker) Forget(tx string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.steps, tx)
}

// Current returns the steps counted for tx.
func (q *quotaTracker) Current(tx string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.steps[tx]
}
