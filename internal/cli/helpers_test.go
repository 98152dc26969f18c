package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/dispatch"
	"github.com/roach88/eventual2pc/internal/entity"
	"github.com/roach88/eventual2pc/internal/httpapi"
	"github.com/roach88/eventual2pc/internal/store"
	"github.com/roach88/eventual2pc/internal/testutil"
)

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeResponse parses a JSON CLIResponse, decoding Data into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

// startAPI serves a fresh bank and runs its dispatcher until the test ends.
func startAPI(t *testing.T) string {
	t.Helper()
	st := testutil.MemStore(t)
	logger := testutil.DiscardLogger()
	domain := bank.NewDomain(testutil.DefaultCatalog(t))
	d := dispatch.New(
		entity.NewRepository(st, bank.NewRegistry(), entity.WithLogger(logger)),
		domain,
		dispatch.WithLogger(logger),
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

	srv := httptest.NewServer(httpapi.NewServer(d, domain, st,
		httpapi.WithLogger(logger),
		httpapi.WithGatherer(prometheus.NewRegistry())).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

// seedBank commits a 30 transfer from A (100) to B (0) in st.
func seedBank(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	domain := bank.NewDomain(testutil.DefaultCatalog(t))
	d := dispatch.New(entity.NewRepository(st, bank.NewRegistry()), domain,
		dispatch.WithLogger(testutil.DiscardLogger()))

	_, err := d.Process(ctx, &bank.OpenAccount{AccountID: "A", Balance: 100})
	require.NoError(t, err)
	_, err = d.Process(ctx, &bank.OpenAccount{AccountID: "B"})
	require.NoError(t, err)
	start, err := domain.StartTransfer("T1", "tx-1", "A", "B", 30)
	require.NoError(t, err)
	_, err = d.Process(ctx, start)
	require.NoError(t, err)
	_, err = d.Drain(ctx)
	require.NoError(t, err)
}
