package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyCurrentSessionID)
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should not have a session")

	require.NoError(t, s.Set(ctx, KeyCurrentSessionID, "s1"))
	got, ok, err := s.Get(ctx, KeyCurrentSessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s1", got)

	require.NoError(t, s.Set(ctx, KeyCurrentSessionID, "s2"))
	got, _, err = s.Get(ctx, KeyCurrentSessionID)
	require.NoError(t, err)
	assert.Equal(t, "s2", got, "Set should overwrite")

	require.NoError(t, s.Remove(ctx, KeyCurrentSessionID))
	_, ok, err = s.Get(ctx, KeyCurrentSessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Remove(ctx, "never-written"), "removing an absent key is not an error")
}

func TestMemoryStore_Contract(t *testing.T) {
	testStoreContract(t, NewMemoryStore(nil))
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "docchat.db"))
	require.NoError(t, err)
	defer s.Close()

	testStoreContract(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyChatMessages, `[{"type":"system","content":"hi"}]`))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, KeyChatMessages)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"type":"system","content":"hi"}]`, got)
}

func TestRemoveAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(map[string]string{
		KeyAccessToken:      "tok",
		KeyUserID:           "u1",
		KeyCurrentSessionID: "s1",
		KeyChatMessages:     "[]",
		KeyDocumentName:     "doc.pdf",
	})

	require.NoError(t, RemoveAll(ctx, s, SessionKeys...))
	assert.Equal(t, map[string]string{KeyAccessToken: "tok", KeyUserID: "u1"}, s.Values())

	require.NoError(t, RemoveAll(ctx, s, AllKeys...))
	assert.Empty(t, s.Values())
}

func TestMemoryStore_SeedIsCopied(t *testing.T) {
	seed := map[string]string{KeyUserID: "u1"}
	s := NewMemoryStore(seed)
	seed[KeyUserID] = "changed"

	got, _, _ := s.Get(context.Background(), KeyUserID)
	assert.Equal(t, "u1", got)
}
