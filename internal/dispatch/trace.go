package dispatch

import (
	"sync"

	"github.com/roach88/eventual2pc/internal/saga"
)

// Outcome labels for processed commands.
const (
	OutcomeOK    = "ok"
	OutcomeNoop  = "noop"
	OutcomeError = "error"
)

// TraceEntry describes one processed command.
type TraceEntry struct {
	Seq        int64             `json:"seq" yaml:"seq"`
	Command    string            `json:"command" yaml:"command"`
	Stream     string            `json:"stream" yaml:"stream"`
	Redelivery bool              `json:"redelivery,omitempty" yaml:"redelivery,omitempty"`
	Outcome    string            `json:"outcome" yaml:"outcome"`
	Records    []saga.RecordKind `json:"records,omitempty" yaml:"records,omitempty"`
}

// Observer receives trace entries. Observe may be called from several
// goroutines when Process is used concurrently.
type Observer interface {
	Observe(TraceEntry)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(TraceEntry)

// Observe calls f.
func (f ObserverFunc) Observe(e TraceEntry) { f(e) }

// Recorder keeps every entry in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []TraceEntry
}

// Observe appends e.
func (r *Recorder) Observe(e TraceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []TraceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// outcomeOf maps a command result to its label. Saga errors are labelled
// by code so refusals can be told apart in metrics and traces.
func outcomeOf(recs []saga.Record, err error) string {
	switch {
	case err != nil:
		if code := saga.CodeOf(err); code != "" {
			return string(code)
		}
		return OutcomeError
	case len(recs) == 0:
		return OutcomeNoop
	default:
		return OutcomeOK
	}
}
