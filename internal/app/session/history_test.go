package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryStore_MissingFile(t *testing.T) {
	store := NewHistoryStore(t.TempDir())

	uris, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, uris)
}

func TestHistoryStore_RoundTrip(t *testing.T) {
	store := NewHistoryStore(t.TempDir())

	saved := []string{"spotify:track:a", "spotify:track:b", "spotify:track:a"}
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestHistoryStore_SaveNilWritesEmptyArray(t *testing.T) {
	dir := t.TempDir()
	store := NewHistoryStore(dir)

	require.NoError(t, store.Save(nil))

	data, err := os.ReadFile(filepath.Join(dir, "partybox-queue-history.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestHistoryStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partybox-queue-history.json"), []byte("not json"), 0644))

	store := NewHistoryStore(dir)
	_, err := store.Load()
	assert.Error(t, err)
}
