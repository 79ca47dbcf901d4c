package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/errors"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.json")
	store := NewFileStore(path)

	_, err := store.Token(context.Background(), "ub-gmail")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, store.SetToken("ub-gmail", "tok-1"))
	require.NoError(t, store.SetToken("ub-outlook", "tok-2"))

	token, err := store.Token(context.Background(), "ub-gmail")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "keystore must be owner-only")
}

func TestFileStorePicksUpRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.json")
	store := NewFileStore(path)
	require.NoError(t, store.SetToken("acct", "old"))

	// Rotate out of band, as a refresh helper would.
	require.NoError(t, os.WriteFile(path, []byte(`{"acct": "new"}`), 0o600))

	token, err := store.Token(context.Background(), "acct")
	require.NoError(t, err)
	assert.Equal(t, "new", token)
}

func TestEnvVarName(t *testing.T) {
	assert.Equal(t, "MIRA_TOKEN_UB_GMAIL", EnvVarName("ub-gmail"))
	assert.Equal(t, "MIRA_TOKEN_ACCT_2", EnvVarName("acct.2"))
}

func TestEnvStore(t *testing.T) {
	t.Setenv("MIRA_TOKEN_UB_GMAIL", "env-token")
	store := &EnvStore{}

	token, err := store.Token(context.Background(), "ub-gmail")
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)

	_, err = store.Token(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestChainPrefersFirstHit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.json")
	file := NewFileStore(path)
	require.NoError(t, file.SetToken("acct", "file-token"))

	t.Setenv("MIRA_TOKEN_ACCT", "env-token")
	chain := Chain{file, &EnvStore{}}

	token, err := chain.Token(context.Background(), "acct")
	require.NoError(t, err)
	assert.Equal(t, "file-token", token, "keystore outranks the environment")

	// Fall through to the environment when the file has no entry.
	t.Setenv("MIRA_TOKEN_OTHER", "env-only")
	token, err = chain.Token(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, "env-only", token)

	_, err = chain.Token(context.Background(), "nowhere")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
