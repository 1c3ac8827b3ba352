package os_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	uwos "github.com/unwalled/unwalled/libs/os"
)

func TestEnsureDir(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "a", "b")

	require.NoError(t, uwos.EnsureDir(dir, 0755))
	require.True(t, uwos.FileExists(dir))

	// idempotent
	require.NoError(t, uwos.EnsureDir(dir, 0755))

	// a regular file in the way is an error
	file := filepath.Join(tmp, "file")
	require.NoError(t, os.WriteFile(file, []byte{}, 0644))
	require.Error(t, uwos.EnsureDir(filepath.Join(file, "sub"), 0755))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	require.False(t, uwos.FileExists(path))

	require.NoError(t, uwos.WriteFileAtomic(path, []byte("first"), 0600))
	require.NoError(t, uwos.WriteFileAtomic(path, []byte("second"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
