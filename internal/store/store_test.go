package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventual2pc/internal/codec"
	"github.com/roach88/eventual2pc/internal/saga"
)

// createTestStore opens a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func envelope(t *testing.T, txID string) codec.Envelope {
	t.Helper()
	env, err := codec.Encode(&saga.TransactionStarted{
		Header:       saga.Header{TransactionID: txID, TransactionType: 1},
		Participants: saga.Participants("A"),
	})
	require.NoError(t, err)
	return env
}

func TestOpenAppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.Append(context.Background(), Stream{"account", "A"}, 0, []codec.Envelope{envelope(t, "tx")})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	v, err := s2.StreamVersion(context.Background(), Stream{"account", "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestAppendAndLoad(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	stream := Stream{Type: "transfer", ID: "T1"}

	v, err := s.Append(ctx, stream, 0, []codec.Envelope{envelope(t, "a"), envelope(t, "b")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	v, err = s.Append(ctx, stream, 2, []codec.Envelope{envelope(t, "c")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	recs, err := s.Load(ctx, stream)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, int64(i+1), r.Version)
		assert.Equal(t, stream, r.Stream)
		assert.Equal(t, saga.KindTransactionStarted, r.Envelope.Kind)
		assert.Equal(t, "1", r.SchemaVersion)
		assert.NoError(t, codec.Verify(r.Envelope))
	}
	assert.Equal(t, envelope(t, "c").Payload, recs[2].Envelope.Payload)
}

func TestAppendVersionConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	stream := Stream{Type: "account", ID: "A"}

	_, err := s.Append(ctx, stream, 0, []codec.Envelope{envelope(t, "a")})
	require.NoError(t, err)

	_, err = s.Append(ctx, stream, 0, []codec.Envelope{envelope(t, "b")})
	require.ErrorIs(t, err, ErrVersionConflict)
	var vc *VersionConflictError
	require.ErrorAs(t, err, &vc)
	assert.Equal(t, int64(0), vc.Expected)
	assert.Equal(t, int64(1), vc.Actual)

	recs, err := s.Load(ctx, stream)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "conflicting append writes nothing")
}

func TestAppendEmptyChecksVersion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	stream := Stream{Type: "account", ID: "A"}

	v, err := s.Append(ctx, stream, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	_, err = s.Append(ctx, stream, 3, nil)
	assert.ErrorIs(t, err, ErrVersionConflict)

	streams, err := s.ListStreams(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, streams)
}

func TestAppendRejectsBadInput(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, Stream{Type: "", ID: "A"}, 0, nil)
	assert.Error(t, err)

	_, err = s.Append(ctx, Stream{Type: "account", ID: "A"}, 0, []codec.Envelope{{Kind: "X"}})
	assert.ErrorContains(t, err, "incomplete")
}

func TestReadAllAndListStreams(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, Stream{"transfer", "T1"}, 0, []codec.Envelope{envelope(t, "1")})
	require.NoError(t, err)
	_, err = s.Append(ctx, Stream{"account", "B"}, 0, []codec.Envelope{envelope(t, "2")})
	require.NoError(t, err)
	_, err = s.Append(ctx, Stream{"account", "A"}, 0, []codec.Envelope{envelope(t, "3")})
	require.NoError(t, err)

	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "T1", all[0].Stream.ID)
	assert.Equal(t, "A", all[2].Stream.ID)
	assert.Less(t, all[0].Seq, all[1].Seq)

	accounts, err := s.ListStreams(ctx, "account")
	require.NoError(t, err)
	assert.Equal(t, []Stream{{"account", "A"}, {"account", "B"}}, accounts)

	every, err := s.ListStreams(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []Stream{{"account", "A"}, {"account", "B"}, {"transfer", "T1"}}, every)

	counts, err := s.CountByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[saga.KindTransactionStarted])
}

func TestLoadUnknownStream(t *testing.T) {
	s := createTestStore(t)

	recs, err := s.Load(context.Background(), Stream{"account", "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestInMemoryStore(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(context.Background(), Stream{"account", "A"}, 0, []codec.Envelope{envelope(t, "x")})
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestParseStream(t *testing.T) {
	st, err := ParseStream("account/A-1")
	require.NoError(t, err)
	assert.Equal(t, Stream{Type: "account", ID: "A-1"}, st)
	assert.Equal(t, "account/A-1", st.String())

	st, err = ParseStream("transfer/a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", st.ID)

	for _, bad := range []string{"account", "/A", "account/"} {
		_, err := ParseStream(bad)
		assert.Error(t, err, bad)
	}
}
