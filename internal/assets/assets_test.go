package assets

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerPriority(t *testing.T) {
	low := t.TempDir()
	high := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(low, "a.txt"), []byte("low"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(low, "b.txt"), []byte("only-low"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(high, "a.txt"), []byte("high"), 0o644))

	m := NewManager()
	require.NoError(t, m.AddDir(low))
	require.NoError(t, m.AddDir(high))
	assert.Equal(t, []string{high, low}, m.Sources())

	data, err := m.Load("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "high", string(data))

	data, err = m.Load("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "only-low", string(data))

	_, err = m.Load("c.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, m.Exists("c.txt"))
}

func TestManagerCache(t *testing.T) {
	m := NewManager()
	m.AddFS("mem", fstest.MapFS{
		"shaders/x.spv": {Data: []byte{1, 2, 3, 4}},
	})

	_, err := m.Load("shaders/x.spv")
	require.NoError(t, err)
	_, err = m.Load("shaders/./x.spv")
	require.NoError(t, err)

	hits, misses := m.cache.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	m.Close()
	_, err = m.Load("shaders/x.spv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddDirErrors(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.AddDir(filepath.Join(t.TempDir(), "missing")))

	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	assert.Error(t, m.AddDir(f))
}
