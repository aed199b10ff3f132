package files

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFile(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src")
	work := filepath.Join(tmpDir, "work", ".scannerwork")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(work, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(work, "report-task.txt"), []byte("x"), 0o644))

	t.Run("found in second root", func(t *testing.T) {
		got, err := FindFile("report-task.txt", src, work)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(work, "report-task.txt"), got)
	})

	t.Run("missing roots are skipped", func(t *testing.T) {
		_, err := FindFile("report-task.txt", "", filepath.Join(tmpDir, "nope"))
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("nested match", func(t *testing.T) {
		nested := filepath.Join(src, "a", "b", "report-task.txt")
		require.NoError(t, os.WriteFile(nested, []byte("y"), 0o644))
		got, err := FindFile("report-task.txt", src, work)
		require.NoError(t, err)
		assert.Equal(t, nested, got)
	})
}

func TestCopyFileAndAppendLines(t *testing.T) {
	tmpDir := t.TempDir()
	orig := filepath.Join(tmpDir, "conf", "sonar.properties")
	require.NoError(t, os.MkdirAll(filepath.Dir(orig), 0o755))
	require.NoError(t, os.WriteFile(orig, []byte("a=1\n"), 0o644))

	backup := filepath.Join(tmpDir, "backup", "sonar.properties")
	require.NoError(t, CopyFile(orig, backup))
	require.NoError(t, AppendLines(orig, []string{"b=2", "c=3"}))

	data, err := os.ReadFile(orig)
	require.NoError(t, err)
	assert.Equal(t, "a=1\nb=2\nc=3\n", string(data))

	data, err = os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "a=1\n", string(data))
}

func TestWriteJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "check_result.json")
	require.NoError(t, WriteJSON(out, map[string]bool{"usable": true}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"usable": true}`, string(data))
}

func TestEnsureWithinRoot(t *testing.T) {
	root := t.TempDir()

	got, err := EnsureWithinRoot(root, filepath.Join(root, "profiles", "java.xml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "profiles", "java.xml"), got)

	_, err = EnsureWithinRoot(root, filepath.Join(root, "..", "etc", "passwd"))
	assert.Error(t, err)
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, ValidatePath(dir))

	f := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	assert.NoError(t, ValidatePath(f))
	assert.True(t, Exists(f))
}
