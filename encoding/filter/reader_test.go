package filter

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFilterFile(t *testing.T, dir string, bits []byte) string {
	buf := make([]byte, 0, headerSize+len(bits))
	buf = append(buf, 0, 0, 0, 0) // empty
	buf = append(buf, 3, 0, 0, 0) // version 3
	n := len(bits)
	buf = append(buf, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	buf = append(buf, bits...)
	path := filepath.Join(dir, "s_1_1101.filter")
	require.NoError(t, ioutil.WriteFile(path, buf, 0644))
	return path
}

func TestLoadAll(t *testing.T) {
	dir, err := ioutil.TempDir("", "filter")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := writeFilterFile(t, dir, []byte{1, 0, 1, 1})
	bits, err := LoadAll(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true}, bits)
}

func TestSeek(t *testing.T) {
	dir, err := ioutil.TempDir("", "filter")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := writeFilterFile(t, dir, []byte{1, 0, 1, 1})
	r, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer r.Close(context.Background())

	require.NoError(t, r.Seek(2))
	pass, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pass)
}

func TestShortHeader(t *testing.T) {
	dir, err := ioutil.TempDir("", "filter")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "bad.filter")
	require.NoError(t, ioutil.WriteFile(path, []byte{1, 2, 3}, 0644))
	_, err = Open(context.Background(), path)
	require.Error(t, err)
}
