package dispatch

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator hands out transaction and transfer ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-sortable UUIDv7 strings. It is stateless and
// safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7. It panics only if the system
// random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator produces prefix-1, prefix-2, ... for deterministic runs.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator returns a generator starting at prefix-1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// FixedGenerator returns predetermined ids in order and panics once they
// run out, which catches tests that create more ids than they expect.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator returns a generator over ids.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
