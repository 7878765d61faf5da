package jsonfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Block uint64 `json:"block"`
}

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	var got record
	ok, err := Read(path, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Write(path, record{Name: "pool", Block: 7}))
	require.NoError(t, Write(path, record{Name: "pool", Block: 8}))

	ok, err = Read(path, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, record{Name: "pool", Block: 8}, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var got record
	_, err := Read(path, &got)
	assert.ErrorContains(t, err, "parse")
}
