package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SatsAndSports/cashu-mls-chat/internal/storage/sqlite"
)

func TestMedium_CRUD(t *testing.T) {
	m, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	_, ok, err := m.GetItem("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetItem("a", "1"))
	value, ok, err := m.GetItem("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", value)

	require.NoError(t, m.SetItem("a", "2"))
	value, _, err = m.GetItem("a")
	require.NoError(t, err)
	assert.Equal(t, "2", value)

	require.NoError(t, m.RemoveItem("a"))
	_, ok, err = m.GetItem("a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.RemoveItem("a")) // absent key is a no-op
}

func TestMedium_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	m, err := sqlite.Open(dir)
	require.NoError(t, err)
	require.NoError(t, m.SetItem("state", `{"v":1}`))
	require.NoError(t, m.Close())

	m, err = sqlite.Open(dir)
	require.NoError(t, err)
	defer m.Close()

	value, ok, err := m.GetItem("state")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"v":1}`, value)

	assert.Equal(t, filepath.Join(dir, "medium.db"), m.DBPath())
}
