package json_test

import (
	"path/filepath"
	"testing"

	jsonstore "codeberg.org/miketth/kbgroupd/pkg/layoutstore/json"
	"github.com/stretchr/testify/require"
)

func TestJSONStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active-layout.json")

	store, err := jsonstore.NewLayoutStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetActiveLayout("us,cz;,qwerty;", 1))

	idx, ok, err := store.ActiveLayout("us,cz;,qwerty;")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, idx)

	require.NoError(t, store.Close())

	// a fresh store reads what the previous one saved
	reopened, err := jsonstore.NewLayoutStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	idx, ok, err = reopened.ActiveLayout("us,cz;,qwerty;")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, idx)
}

func TestJSONStoreMissingEntry(t *testing.T) {
	store, err := jsonstore.NewLayoutStore(filepath.Join(t.TempDir(), "active-layout.json"))
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.ActiveLayout("us;;")
	require.NoError(t, err)
	require.False(t, ok)
}
