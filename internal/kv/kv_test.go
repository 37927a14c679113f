package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s Store) {
	t.Helper()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("k", "v1")
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	s.Set("k", "v2")
	v, _ = s.Get("k")
	assert.Equal(t, "v2", v)

	s.Remove("k")
	_, ok = s.Get("k")
	assert.False(t, ok)

	// удаление отсутствующего ключа — не ошибка
	s.Remove("k")
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestSQLite_InMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	exercise(t, s)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	s.Set("scrum-poker", `{"roomId":"main-room"}`)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok := s.Get("scrum-poker")
	require.True(t, ok)
	assert.Equal(t, `{"roomId":"main-room"}`, v)
}

func TestSQLite_ClosedStoreSwallowsErrors(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.NotPanics(t, func() {
		s.Set("k", "v")
		s.Remove("k")
	})
	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}
