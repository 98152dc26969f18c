package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/httpapi"
)

func openAccount(t *testing.T, url, id, balance string) {
	t.Helper()
	_, _, err := execute(NewAccountCommand(&RootOptions{Format: "text"}),
		"open", id, "--balance", balance, "--server", url)
	require.NoError(t, err)
}

func TestAccountOpenAndShow(t *testing.T) {
	url := startAPI(t)

	out, _, err := execute(NewAccountCommand(&RootOptions{Format: "text"}),
		"open", "A", "--balance", "100", "--owner", "Ann", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Account A (Ann)")
	assert.Contains(t, out, "balance:   100")

	out, _, err = execute(NewAccountCommand(&RootOptions{Format: "json"}), "show", "A", "--server", url)
	require.NoError(t, err)
	var view bank.AccountView
	resp := decodeResponse(t, out, &view)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(100), view.Balance)
	assert.Equal(t, "idle", view.Phase)
}

func TestAccountShowMissing(t *testing.T) {
	url := startAPI(t)

	out, _, err := execute(NewAccountCommand(&RootOptions{Format: "text"}), "show", "ghost", "--server", url)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")
}

func TestAccountOpenDuplicate(t *testing.T) {
	url := startAPI(t)
	openAccount(t, url, "A", "1")

	out, _, err := execute(NewAccountCommand(&RootOptions{Format: "json"}), "open", "A", "--server", url)
	require.Error(t, err)
	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "ALREADY_EXISTS", resp.Error.Code)
}

func TestClientCommandUnreachableServer(t *testing.T) {
	out, _, err := execute(NewAccountCommand(&RootOptions{Format: "text"}),
		"show", "A", "--server", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E_UNREACHABLE")
}

func TestTransferWait(t *testing.T) {
	url := startAPI(t)
	openAccount(t, url, "A", "100")
	openAccount(t, url, "B", "0")

	out, _, err := execute(NewTransferCommand(&RootOptions{Format: "text"}),
		"A", "B", "30", "--id", "T1", "--wait", "--poll", "10ms", "--server", url)
	require.NoError(t, err)
	assert.Equal(t, "Transfer T1: A -> B amount=30 committed\n", out)

	out, _, err = execute(NewAccountCommand(&RootOptions{Format: "json"}), "show", "B", "--server", url)
	require.NoError(t, err)
	var view bank.AccountView
	decodeResponse(t, out, &view)
	assert.Equal(t, int64(30), view.Balance)
}

func TestTransferWaitRolledBack(t *testing.T) {
	url := startAPI(t)
	openAccount(t, url, "A", "10")
	openAccount(t, url, "B", "0")

	out, _, err := execute(NewTransferCommand(&RootOptions{Format: "text"}),
		"A", "B", "30", "--wait", "--poll", "10ms", "--server", url)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "rolled_back")
}

func TestTransferWithoutWait(t *testing.T) {
	url := startAPI(t)
	openAccount(t, url, "A", "10")
	openAccount(t, url, "B", "0")

	out, _, err := execute(NewTransferCommand(&RootOptions{Format: "json"}),
		"A", "B", "5", "--tx", "pay-1", "--server", url)
	require.NoError(t, err)
	var accepted httpapi.Accepted
	decodeResponse(t, out, &accepted)
	assert.Equal(t, "transfer/pay-1", accepted.Stream)
	assert.Equal(t, "pay-1", accepted.TransactionID)
}

func TestTransferInvalidAmount(t *testing.T) {
	_, _, err := execute(NewTransferCommand(&RootOptions{Format: "text"}), "A", "B", "lots")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid amount "lots"`)
}

func TestAccountFreezeWait(t *testing.T) {
	url := startAPI(t)
	openAccount(t, url, "A", "10")
	openAccount(t, url, "B", "0")

	out, _, err := execute(NewAccountCommand(&RootOptions{Format: "text"}),
		"freeze", "A", "--id", "F1", "--wait", "--poll", "10ms", "--server", url)
	require.NoError(t, err)
	assert.Equal(t, "Freeze F1 of A: committed\n", out)

	out, _, err = execute(NewAccountCommand(&RootOptions{Format: "text"}), "show", "A", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "frozen")

	_, _, err = execute(NewTransferCommand(&RootOptions{Format: "text"}),
		"A", "B", "5", "--wait", "--poll", "10ms", "--server", url)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCollect(t *testing.T) {
	url := startAPI(t)
	openAccount(t, url, "A", "0")
	openAccount(t, url, "B", "10")
	openAccount(t, url, "C", "10")

	out, _, err := execute(NewCollectCommand(&RootOptions{Format: "text"}),
		"A", "4", "B", "C", "--tx", "c-1", "--server", url)
	require.NoError(t, err)
	assert.Equal(t, "Accepted account/A (transaction c-1)\n", out)

	require.Eventually(t, func() bool {
		out, _, err := execute(NewAccountCommand(&RootOptions{Format: "json"}), "show", "A", "--server", url)
		if err != nil {
			return false
		}
		var resp struct {
			Data bank.AccountView `json:"data"`
		}
		if json.Unmarshal([]byte(out), &resp) != nil {
			return false
		}
		return resp.Data.Balance == 8 && resp.Data.Phase == "idle"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHistory(t *testing.T) {
	url := startAPI(t)
	openAccount(t, url, "A", "7")

	out, _, err := execute(NewHistoryCommand(&RootOptions{Format: "json"}), "account/A", "--server", url)
	require.NoError(t, err)
	var entries []httpapi.HistoryEntry
	decodeResponse(t, out, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, string(bank.KindAccountOpened), entries[0].Kind)
	assert.JSONEq(t, `{"account_id":"A","balance":7}`, string(entries[0].Payload))

	_, _, err = execute(NewHistoryCommand(&RootOptions{Format: "text"}), "not-a-stream", "--server", url)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
