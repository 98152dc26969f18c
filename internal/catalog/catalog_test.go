package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventual2pc/internal/saga"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	txs := c.Transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, "transfer", txs[0].Name)
	assert.Equal(t, saga.TransactionType(1), txs[0].Tag)
	assert.Equal(t, []saga.PreparationKind{"debit", "credit"}, txs[0].Preparations)
	assert.Equal(t, "collect", txs[1].Name)
	assert.Equal(t, "freeze", txs[2].Name)
	assert.Equal(t, []saga.PreparationKind{"freeze"}, txs[2].Preparations)

	assert.Equal(t, []saga.PreparationKind{"credit", "debit", "freeze"}, c.PreparationKinds())

	tk, ok := c.TransactionByTag(2)
	require.True(t, ok)
	assert.Equal(t, "collect", tk.Name)
	_, ok = c.Transaction("missing")
	assert.False(t, ok)
}

func TestExclusionsAreSymmetric(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.True(t, c.Excludes("debit", "freeze"))
	assert.True(t, c.Excludes("freeze", "debit"))
	assert.True(t, c.Excludes("freeze", "freeze"))
	assert.False(t, c.Excludes("debit", "credit"))
	assert.False(t, c.Excludes("debit", "debit"))

	for _, pk := range c.Preparations() {
		if pk.Name == "freeze" {
			assert.Equal(t, []saga.PreparationKind{"credit", "debit", "freeze"}, pk.Excludes)
		}
	}
}

func TestPolicy(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	role := saga.NewParticipantRole("A", c.PreparationKinds(), c.Policy(), nil)
	recs, err := role.PreCommit(&saga.Preparation{TransactionID: "t1", TransactionType: 1, Kind: "debit"})
	require.NoError(t, err)
	for _, r := range recs {
		_, err := role.Apply(r)
		require.NoError(t, err)
	}

	_, err = role.PreCommit(&saga.Preparation{TransactionID: "t2", TransactionType: 1, Kind: "credit"})
	assert.NoError(t, err)

	_, err = role.PreCommit(&saga.Preparation{TransactionID: "t3", TransactionType: 3, Kind: "freeze"})
	require.ErrorIs(t, err, saga.ErrPreparationRejected)
	var ex *ExclusionError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, saga.PreparationKind("debit"), ex.Staged)
	assert.Equal(t, "t1", ex.TransactionID)
}

func TestPolicyRejectsKindsOutsideTheTransaction(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	role := saga.NewParticipantRole("A", c.PreparationKinds(), c.Policy(), nil)

	tests := []struct {
		name string
		p    saga.Preparation
		want KindError
	}{
		{"freeze inside a transfer", saga.Preparation{TransactionID: "t1", TransactionType: 1, Kind: "freeze"},
			KindError{Kind: "freeze", Transaction: "transfer", Tag: 1}},
		{"credit inside a collect", saga.Preparation{TransactionID: "t2", TransactionType: 2, Kind: "credit"},
			KindError{Kind: "credit", Transaction: "collect", Tag: 2}},
		{"unknown tag", saga.Preparation{TransactionID: "t3", TransactionType: 9, Kind: "debit"},
			KindError{Kind: "debit", Tag: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := role.PreCommit(&tt.p)
			require.ErrorIs(t, err, saga.ErrPreparationRejected)
			var ke *KindError
			require.ErrorAs(t, err, &ke)
			assert.Equal(t, tt.want, *ke)
		})
	}

	assert.NoError(t, c.Allowed(saga.Preparation{TransactionType: 3, Kind: "freeze"}))
	assert.EqualError(t, c.Allowed(saga.Preparation{TransactionType: 1, Kind: "freeze"}),
		"transfer transactions do not stage freeze")
}

func TestLoadRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{
			name: "syntax error",
			src:  `transactions: {`,
		},
		{
			name: "tag out of range",
			src: `
transactions: t: {tag: 0, preparations: ["a"]}
preparations: a: {}`,
		},
		{
			name: "duplicate tag",
			src: `
transactions: t: {tag: 1, preparations: ["a"]}
transactions: u: {tag: 1, preparations: ["a"]}
preparations: a: {}`,
			msg: "already used",
		},
		{
			name: "unknown preparation",
			src: `
transactions: t: {tag: 1, preparations: ["b"]}
preparations: a: {}`,
			msg: "unknown preparation kind",
		},
		{
			name: "unknown exclusion",
			src: `
transactions: t: {tag: 1, preparations: ["a"]}
preparations: a: {excludes: ["zzz"]}`,
			msg: "unknown preparation kind",
		},
		{
			name: "empty preparations list",
			src: `
transactions: t: {tag: 1, preparations: []}
preparations: a: {}`,
			msg: "at least one kind",
		},
		{
			name: "missing transactions",
			src:  `preparations: a: {}`,
			msg:  "transaction kind is required",
		},
		{
			name: "unknown field",
			src: `
transactions: t: {tag: 1, preparations: ["a"], color: "red"}
preparations: a: {}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("test.cue", []byte(tt.src))
			require.Error(t, err)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.cue")
	src := `
transactions: swap: {tag: 9, preparations: ["give", "take"]}
preparations: {
	give: {}
	take: {excludes: ["give"]}
}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, c.Excludes("give", "take"))
	tk, ok := c.Transaction("swap")
	require.True(t, ok)
	assert.Equal(t, saga.TransactionType(9), tk.Tag)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}

func TestLoadErrorFormat(t *testing.T) {
	err := &LoadError{Field: "transactions.t.tag", Message: "bad"}
	assert.Equal(t, "transactions.t.tag: bad", err.Error())
}
