package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndOpen(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	key, size, err := local.Save("user-1", ".txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.EqualValues(t, 11, size)
	assert.True(t, strings.HasPrefix(key, "user-1/"))
	assert.True(t, strings.HasSuffix(key, ".txt"))

	rc, err := local.Open(key)
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
}

func TestSaveNormalizesExtension(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	key, _, err := local.Save("user-1", "pdf", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".pdf"))
}

func TestDelete(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	key, _, err := local.Save("user-1", ".txt", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, local.Delete(key))
	_, err = local.Open(key)
	require.Error(t, err)

	// Deleting again is a no-op.
	require.NoError(t, local.Delete(key))
}

func TestResolveRejectsTraversal(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = local.Open("../etc/passwd")
	require.Error(t, err)

	err = local.Delete("user-1/../../outside")
	require.Error(t, err)
}
