package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/dispatch"
	"github.com/roach88/eventual2pc/internal/entity"
	"github.com/roach88/eventual2pc/internal/saga"
	"github.com/roach88/eventual2pc/internal/store"
	"github.com/roach88/eventual2pc/internal/testutil"
)

type testServer struct {
	url    string
	client *Client
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	st := testutil.MemStore(t)
	logger := testutil.DiscardLogger()
	reg := prometheus.NewRegistry()
	domain := bank.NewDomain(testutil.DefaultCatalog(t))
	d := dispatch.New(
		entity.NewRepository(st, bank.NewRegistry(), entity.WithLogger(logger)),
		domain,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(dispatch.NewMetrics(reg)),
		dispatch.WithIDGenerator(dispatch.NewSequenceGenerator("tx")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(NewServer(d, domain, st, WithLogger(logger), WithGatherer(reg)).Handler())
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, client: NewClient(srv.URL)}
}

func (ts *testServer) open(t *testing.T, id string, balance int64) {
	t.Helper()
	_, err := ts.client.OpenAccount(context.Background(), OpenAccountRequest{ID: id, Balance: balance})
	require.NoError(t, err)
}

func (ts *testServer) balance(t *testing.T, id string) int64 {
	t.Helper()
	v, err := ts.client.Account(context.Background(), id)
	require.NoError(t, err)
	return v.Balance
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, status, apiErr.Status)
	assert.Equal(t, code, apiErr.Code)
}

func TestServer_OpenAccount(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	v, err := ts.client.OpenAccount(ctx, OpenAccountRequest{ID: "A", Owner: "ada", Balance: 100})
	require.NoError(t, err)
	assert.Equal(t, "A", v.ID)
	assert.True(t, v.Open)
	assert.Equal(t, int64(100), v.Available)
	assert.Equal(t, "idle", v.Phase)

	got, err := ts.client.Account(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Owner)
}

func TestServer_TransferCommits(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()
	ts.open(t, "A", 100)
	ts.open(t, "B", 0)

	acc, err := ts.client.Transfer(ctx, TransferRequest{ID: "T1", From: "A", To: "B", Amount: 30})
	require.NoError(t, err)
	assert.Equal(t, "transfer/T1", acc.Stream)
	assert.Equal(t, "tx-1", acc.TransactionID)

	require.Eventually(t, func() bool {
		v, err := ts.client.TransferStatus(ctx, "T1")
		return err == nil && v.Outcome == bank.OutcomeCommitted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(70), ts.balance(t, "A"))
	assert.Equal(t, int64(30), ts.balance(t, "B"))
}

func TestServer_TransferIDDefaultsToTransactionID(t *testing.T) {
	ts := startServer(t)
	ts.open(t, "A", 10)
	ts.open(t, "B", 0)

	acc, err := ts.client.Transfer(context.Background(), TransferRequest{From: "A", To: "B", Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, "transfer/tx-1", acc.Stream)
}

func TestServer_Collect(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()
	ts.open(t, "A", 0)
	ts.open(t, "B", 10)
	ts.open(t, "C", 10)

	acc, err := ts.client.Collect(ctx, "A", CollectRequest{TransactionID: "c-1", Sources: []string{"B", "C"}, Amount: 4})
	require.NoError(t, err)
	assert.Equal(t, "account/A", acc.Stream)
	assert.Equal(t, "c-1", acc.TransactionID)

	require.Eventually(t, func() bool {
		return ts.balance(t, "A") == 8
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(6), ts.balance(t, "B"))
	assert.Equal(t, int64(6), ts.balance(t, "C"))
}

func TestServer_FreezeBlocksLaterTransfers(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()
	ts.open(t, "A", 10)
	ts.open(t, "B", 0)

	acc, err := ts.client.Freeze(ctx, "A", FreezeRequest{ID: "F1"})
	require.NoError(t, err)
	assert.Equal(t, "freeze/F1", acc.Stream)

	require.Eventually(t, func() bool {
		v, err := ts.client.FreezeStatus(ctx, "F1")
		return err == nil && v.Outcome == bank.OutcomeCommitted
	}, 5*time.Second, 10*time.Millisecond)
	v, err := ts.client.Account(ctx, "A")
	require.NoError(t, err)
	assert.True(t, v.Frozen)

	_, err = ts.client.Freeze(ctx, "A", FreezeRequest{ID: "F1"})
	requireAPIError(t, err, http.StatusConflict, "ALREADY_EXISTS")
	_, err = ts.client.FreezeStatus(ctx, "F9")
	requireAPIError(t, err, http.StatusNotFound, "NOT_FOUND")

	_, err = ts.client.Transfer(ctx, TransferRequest{ID: "T1", From: "A", To: "B", Amount: 5})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, err := ts.client.TransferStatus(ctx, "T1")
		return err == nil && v.Outcome == bank.OutcomeRolledBack
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(10), ts.balance(t, "A"))
}

func TestServer_Errors(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()
	ts.open(t, "A", 10)
	ts.open(t, "B", 0)

	_, err := ts.client.OpenAccount(ctx, OpenAccountRequest{ID: "A"})
	requireAPIError(t, err, http.StatusConflict, "ALREADY_EXISTS")

	_, err = ts.client.OpenAccount(ctx, OpenAccountRequest{})
	requireAPIError(t, err, http.StatusBadRequest, "BAD_REQUEST")

	_, err = ts.client.Account(ctx, "missing")
	requireAPIError(t, err, http.StatusNotFound, "NOT_FOUND")

	_, err = ts.client.Transfer(ctx, TransferRequest{From: "A", To: "B", Amount: 0})
	requireAPIError(t, err, http.StatusBadRequest, "INVALID_ARGUMENT")

	_, err = ts.client.Transfer(ctx, TransferRequest{From: "A", To: "A", Amount: 1})
	requireAPIError(t, err, http.StatusBadRequest, string(saga.CodeInvalidTransaction))

	_, err = ts.client.Collect(ctx, "nobody", CollectRequest{Sources: []string{"A"}, Amount: 1})
	requireAPIError(t, err, http.StatusNotFound, "NOT_FOUND")

	_, err = ts.client.TransferStatus(ctx, "nope")
	requireAPIError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestServer_RejectsUnknownFields(t *testing.T) {
	ts := startServer(t)

	resp, err := http.Post(ts.url+"/accounts", "application/json", strings.NewReader(`{"id":"A","balanse":5}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_StreamHistory(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()
	ts.open(t, "A", 10)

	entries, err := ts.client.History(ctx, bank.AccountStream("A"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(bank.KindAccountOpened), entries[0].Kind)
	assert.Equal(t, int64(1), entries[0].Version)
	assert.JSONEq(t, `{"account_id":"A","balance":10}`, string(entries[0].Payload))

	_, err = ts.client.History(ctx, store.Stream{Type: "account", ID: "ghost"})
	requireAPIError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := startServer(t)
	ts.open(t, "A", 10)

	h, err := ts.client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	resp, err := http.Get(ts.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `e2pc_commands_total{command="OpenAccount",outcome="ok"} 1`)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"exists", fmt.Errorf("open: %w", bank.ErrAccountExists), http.StatusConflict, "ALREADY_EXISTS"},
		{"freeze exists", fmt.Errorf("freeze: %w", bank.ErrFreezeExists), http.StatusConflict, "ALREADY_EXISTS"},
		{"validation", saga.ErrInvalidArgument, http.StatusBadRequest, string(saga.CodeInvalidArgument)},
		{"state", saga.ErrAlreadyInTransaction, http.StatusConflict, string(saga.CodeAlreadyInTransaction)},
		{"domain", saga.ErrPreparationConflict, http.StatusUnprocessableEntity, string(saga.CodePreparationConflict)},
		{"version", &store.VersionConflictError{}, http.StatusConflict, "VERSION_CONFLICT"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
