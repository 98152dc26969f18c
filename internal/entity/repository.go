// Package entity loads entities by folding their record streams and appends
// the records their commands produce under optimistic concurrency.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/eventual2pc/internal/codec"
	"github.com/roach88/eventual2pc/internal/saga"
	"github.com/roach88/eventual2pc/internal/store"
)

// DefaultMaxAttempts bounds how often Execute retries after a version
// conflict.
const DefaultMaxAttempts = 5

// Entity is anything rebuilt by folding records.
type Entity interface {
	Apply(rec saga.Record) error
}

// Log is the subset of the store a Repository needs.
type Log interface {
	Append(ctx context.Context, stream store.Stream, expected int64, envs []codec.Envelope) (int64, error)
	Load(ctx context.Context, stream store.Stream) ([]store.StoredRecord, error)
}

// Handler runs a command against a freshly loaded entity and returns the
// records to append. It must not mutate the entity.
type Handler func(e Entity) ([]saga.Record, error)

// Repository loads and saves entities.
type Repository struct {
	log         Log
	registry    *codec.Registry
	maxAttempts int
	logger      *slog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithMaxAttempts sets the retry bound. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(r *Repository) {
		if n >= 1 {
			r.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

// NewRepository creates a repository over log, decoding with registry.
func NewRepository(log Log, registry *codec.Registry, opts ...Option) *Repository {
	r := &Repository{
		log:         log,
		registry:    registry,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load folds the history of stream into e and returns the stream version.
func (r *Repository) Load(ctx context.Context, stream store.Stream, e Entity) (int64, error) {
	stored, err := r.log.Load(ctx, stream)
	if err != nil {
		return 0, err
	}
	var version int64
	for _, sr := range stored {
		rec, err := r.registry.Decode(sr.Envelope.Kind, sr.Envelope.Payload)
		if err != nil {
			return 0, fmt.Errorf("load %s v%d: %w", stream, sr.Version, err)
		}
		if err := e.Apply(rec); err != nil {
			return 0, fmt.Errorf("load %s v%d: apply %s: %w", stream, sr.Version, sr.Envelope.Kind, err)
		}
		version = sr.Version
	}
	return version, nil
}

// History returns the decoded records of stream in order.
func (r *Repository) History(ctx context.Context, stream store.Stream) ([]saga.Record, error) {
	stored, err := r.log.Load(ctx, stream)
	if err != nil {
		return nil, err
	}
	out := make([]saga.Record, 0, len(stored))
	for _, sr := range stored {
		rec, err := r.registry.Decode(sr.Envelope.Kind, sr.Envelope.Payload)
		if err != nil {
			return nil, fmt.Errorf("history %s v%d: %w", stream, sr.Version, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Result is the outcome of a successful Execute.
type Result struct {
	// Entity reflects the stream after the appended records.
	Entity  Entity
	Records []saga.Record
	Version int64
}

// Execute loads a fresh entity from newEntity, runs handle, and appends the
// resulting records. On a version conflict the whole cycle is retried, so
// handle sees the latest state each time. A handler returning no records
// appends nothing.
func (r *Repository) Execute(ctx context.Context, stream store.Stream, newEntity func() Entity, handle Handler) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		e := newEntity()
		version, err := r.Load(ctx, stream, e)
		if err != nil {
			return Result{}, err
		}

		recs, err := handle(e)
		if err != nil {
			return Result{}, err
		}
		if len(recs) == 0 {
			return Result{Entity: e, Version: version}, nil
		}

		envs, err := codec.EncodeAll(recs)
		if err != nil {
			return Result{}, fmt.Errorf("execute %s: %w", stream, err)
		}

		version, err = r.log.Append(ctx, stream, version, envs)
		if err == nil {
			for _, rec := range recs {
				if err := e.Apply(rec); err != nil {
					return Result{}, fmt.Errorf("execute %s: apply %s: %w", stream, rec.RecordKind(), err)
				}
			}
			return Result{Entity: e, Records: recs, Version: version}, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return Result{}, err
		}
		lastErr = err
		r.logger.Debug("version conflict, retrying",
			"stream", stream.String(),
			"attempt", attempt,
			"error", err)
	}
	return Result{}, fmt.Errorf("execute %s: gave up after %d attempts: %w", stream, r.maxAttempts, lastErr)
}
