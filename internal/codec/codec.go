// Package codec converts transition records to and from their persisted form.
//
// A record is encoded as canonical JSON (RFC 8785) so the same record always
// produces the same bytes and the same hash. Decoding goes through a Registry
// that maps record kinds to empty record values.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/eventual2pc/internal/ir"
	"github.com/roach88/eventual2pc/internal/saga"
)

// Envelope is the persisted form of one record.
type Envelope struct {
	Kind    saga.RecordKind
	Payload []byte
	Hash    string
}

// Factory returns an empty, pointer-typed record ready for decoding.
type Factory func() saga.Record

// Registry maps record kinds to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[saga.RecordKind]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[saga.RecordKind]Factory)}
}

// DefaultRegistry returns a registry that knows every saga record kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, kind := range saga.Kinds() {
		kind := kind
		r.MustRegister(kind, func() saga.Record { return saga.New(kind) })
	}
	return r
}

// Register adds a factory. Registering a kind twice is an error.
func (r *Registry) Register(kind saga.RecordKind, f Factory) error {
	if kind == "" {
		return fmt.Errorf("register: empty record kind")
	}
	if f == nil {
		return fmt.Errorf("register %s: nil factory", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("register %s: kind already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kind saga.RecordKind, f Factory) {
	if err := r.Register(kind, f); err != nil {
		panic(err)
	}
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []saga.RecordKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]saga.RecordKind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Encode produces the canonical envelope for rec.
func Encode(rec saga.Record) (Envelope, error) {
	if rec == nil {
		return Envelope{}, fmt.Errorf("encode: nil record")
	}
	kind := rec.RecordKind()
	raw, err := json.Marshal(rec)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	v, err := ir.UnmarshalIRValue(raw)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	payload, err := ir.MarshalCanonical(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Envelope{Kind: kind, Payload: payload, Hash: ir.RecordHash(string(kind), payload)}, nil
}

// EncodeAll encodes recs in order.
func EncodeAll(recs []saga.Record) ([]Envelope, error) {
	out := make([]Envelope, 0, len(recs))
	for _, rec := range recs {
		env, err := Encode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// Decode rebuilds a record from its kind and payload. Unknown kinds and
// unknown payload fields are errors.
func (r *Registry) Decode(kind saga.RecordKind, payload []byte) (saga.Record, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decode: unknown record kind %q", kind)
	}

	rec := f()
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if rec.RecordKind() != kind {
		return nil, fmt.Errorf("decode %s: factory produced %s", kind, rec.RecordKind())
	}
	return rec, nil
}

// Verify recomputes the envelope hash and checks that the payload is in
// canonical form.
func Verify(env Envelope) error {
	v, err := ir.UnmarshalIRValue(env.Payload)
	if err != nil {
		return fmt.Errorf("verify %s: %w", env.Kind, err)
	}
	canonical, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Errorf("verify %s: %w", env.Kind, err)
	}
	if !bytes.Equal(canonical, env.Payload) {
		return fmt.Errorf("verify %s: payload is not canonical", env.Kind)
	}
	if got := ir.RecordHash(string(env.Kind), env.Payload); got != env.Hash {
		return fmt.Errorf("verify %s: hash mismatch (stored %s, computed %s)", env.Kind, env.Hash, got)
	}
	return nil
}
