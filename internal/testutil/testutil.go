// Package testutil holds fixtures shared by tests above the storage layer.
package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/eventual2pc/internal/catalog"
	"github.com/roach88/eventual2pc/internal/store"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MemStore opens a private in-memory store closed at test cleanup.
func MemStore(t testing.TB) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// FileStore opens a store in a temp dir and returns it with its path.
// The store is closed at test cleanup; reopening the path is allowed.
func FileStore(t testing.TB) (*store.Store, string) {
	t.Helper()
	path := t.TempDir() + "/e2pc.db"
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, path
}

// DefaultCatalog loads the built-in catalog.
func DefaultCatalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}
