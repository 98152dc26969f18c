package harness

import "github.com/roach88/eventual2pc/internal/dispatch"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step and expectation matched.
	Pass bool `json:"pass"`

	// Trace holds every processed command in order, redeliveries included.
	Trace []dispatch.TraceEntry `json:"trace"`

	// Errors describes each mismatch. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult returns a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []dispatch.TraceEntry{},
		Errors: []string{},
	}
}

// AddError records a mismatch and fails the result.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
