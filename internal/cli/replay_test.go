package cli

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventual2pc/internal/testutil"
)

func TestReplayEmptyDatabase(t *testing.T) {
	_, path := testutil.FileStore(t)

	out, _, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No records found")
}

func TestReplayCleanLog(t *testing.T) {
	st, path := testutil.FileStore(t)
	seedBank(t, st)

	out, _, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 3 stream(s)")
	assert.Contains(t, out, "✓ All streams replayed cleanly")

	out, _, err = execute(NewReplayCommand(&RootOptions{Format: "json"}), "--db", path)
	require.NoError(t, err)
	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.AllValid)
	assert.Equal(t, 3, result.TotalStreams)
	assert.Equal(t, int64(1), result.Kinds["TransactionCompleted"])
	assert.Equal(t, int64(2), result.Kinds["PreparationCommitted"])
	var names []string
	for _, s := range result.Streams {
		assert.True(t, s.OK, s.Stream)
		names = append(names, s.Stream)
	}
	assert.Equal(t, []string{"account/A", "account/B", "transfer/T1"}, names)
	assert.Equal(t, 14, result.TotalRecords)
}

func TestReplayDetectsTampering(t *testing.T) {
	st, path := testutil.FileStore(t)
	seedBank(t, st)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`UPDATE records SET payload = '{"account_id":"A","balance":1000}' WHERE stream_type = 'account' AND stream_id = 'A' AND version = 1`)
	require.NoError(t, err)

	out, _, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), "--db", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_CORRUPT_LOG", resp.Error.Code)
	assert.False(t, result.AllValid)

	byStream := map[string]ReplayStreamResult{}
	for _, s := range result.Streams {
		byStream[s.Stream] = s
	}
	assert.False(t, byStream["account/A"].OK)
	assert.Contains(t, byStream["account/A"].Error, "hash mismatch")
	assert.True(t, byStream["account/B"].OK)
	assert.True(t, byStream["transfer/T1"].OK)
}

func TestReplayMissingDatabaseDir(t *testing.T) {
	_, _, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", t.TempDir()+"/no/such/dir/e2pc.db")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
