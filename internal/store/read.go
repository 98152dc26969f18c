package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/eventual2pc/internal/saga"
)

const recordColumns = `seq, stream_type, stream_id, version, kind, payload, record_hash, schema_version`

// Load returns every record of stream in version order. An unknown stream
// has no records.
func (s *Store) Load(ctx context.Context, stream Stream) ([]StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE stream_type = ? AND stream_id = ?
		ORDER BY version ASC
	`, stream.Type, stream.ID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", stream, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ReadAll returns the whole log in append order.
func (s *Store) ReadAll(ctx context.Context) ([]StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// StreamVersion returns the current version of stream, zero if unknown.
func (s *Store) StreamVersion(ctx context.Context, stream Stream) (int64, error) {
	return streamVersion(ctx, s.db, stream)
}

// ListStreams returns known streams ordered by type then id. An empty
// streamType lists every stream.
func (s *Store) ListStreams(ctx context.Context, streamType string) ([]Stream, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stream_type, stream_id
		FROM streams
		WHERE ? = '' OR stream_type = ?
		ORDER BY stream_type COLLATE BINARY ASC, stream_id COLLATE BINARY ASC
	`, streamType, streamType)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	streams := []Stream{}
	for rows.Next() {
		var st Stream
		if err := rows.Scan(&st.Type, &st.ID); err != nil {
			return nil, fmt.Errorf("list streams: scan: %w", err)
		}
		streams = append(streams, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	return streams, nil
}

// CountByKind returns how many records of each kind the log holds.
func (s *Store) CountByKind(ctx context.Context) (map[saga.RecordKind]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM records GROUP BY kind ORDER BY kind ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[saga.RecordKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("count by kind: scan: %w", err)
		}
		counts[saga.RecordKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	return counts, nil
}

func scanRecords(rows *sql.Rows) ([]StoredRecord, error) {
	records := []StoredRecord{}
	for rows.Next() {
		var (
			r       StoredRecord
			kind    string
			payload string
		)
		if err := rows.Scan(
			&r.Seq,
			&r.Stream.Type,
			&r.Stream.ID,
			&r.Version,
			&kind,
			&payload,
			&r.Envelope.Hash,
			&r.SchemaVersion,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Envelope.Kind = saga.RecordKind(kind)
		r.Envelope.Payload = []byte(payload)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
