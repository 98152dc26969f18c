package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/eventual2pc/internal/codec"
	"github.com/roach88/eventual2pc/internal/ir"
)

// Append writes envs to the end of stream in one transaction and returns the
// new stream version. expected is the version the caller loaded; zero means
// the stream must not exist yet. If the stream is at any other version the
// append writes nothing and returns a *VersionConflictError.
//
// Appending no envelopes only checks the version.
func (s *Store) Append(ctx context.Context, stream Stream, expected int64, envs []codec.Envelope) (int64, error) {
	if err := stream.Validate(); err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append %s: begin: %w", stream, err)
	}
	defer tx.Rollback()

	current, err := streamVersion(ctx, tx, stream)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", stream, err)
	}
	if current != expected {
		return 0, &VersionConflictError{Stream: stream, Expected: expected, Actual: current}
	}
	if len(envs) == 0 {
		return current, nil
	}

	next := current + int64(len(envs))
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO streams (stream_type, stream_id, version)
		VALUES (?, ?, ?)
		ON CONFLICT(stream_type, stream_id) DO UPDATE SET version = excluded.version
	`, stream.Type, stream.ID, next); err != nil {
		return 0, fmt.Errorf("append %s: update stream: %w", stream, err)
	}

	for i, env := range envs {
		if env.Kind == "" || len(env.Payload) == 0 || env.Hash == "" {
			return 0, fmt.Errorf("append %s: envelope %d is incomplete", stream, i)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records
			(stream_type, stream_id, version, kind, payload, record_hash, schema_version)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			stream.Type,
			stream.ID,
			current+int64(i)+1,
			string(env.Kind),
			string(env.Payload),
			env.Hash,
			ir.RecordSchemaVersion,
		); err != nil {
			return 0, fmt.Errorf("append %s: insert record: %w", stream, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append %s: commit: %w", stream, err)
	}
	return next, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func streamVersion(ctx context.Context, q queryRower, stream Stream) (int64, error) {
	var version int64
	err := q.QueryRowContext(ctx, `
		SELECT version FROM streams WHERE stream_type = ? AND stream_id = ?
	`, stream.Type, stream.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read stream version: %w", err)
	}
	return version, nil
}
