package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".jcsh_history"), DefaultPath())

	t.Setenv("HOME", "")
	assert.Equal(t, ".jcsh_history", DefaultPath())
}

func TestLoad_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	s := New(path, 10)

	require.NoError(t, s.Load())
	assert.Empty(t, s.Lines())
	assert.FileExists(t, path)
}

func TestLoad_ReadsExistingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	require.NoError(t, os.WriteFile(path, []byte("ls -l\n\necho hi | cat\n"), 0o600))

	s := New(path, 10)
	require.NoError(t, s.Load())
	assert.Equal(t, []string{"ls -l", "echo hi | cat"}, s.Lines())
}

func TestLoad_UnreadableDirectory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing", "history"), 10)
	require.Error(t, s.Load())
}

func TestAdd_SkipsBlankLines(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "history"), 10)
	s.Add("pwd")
	s.Add("   ")
	s.Add("")
	assert.Equal(t, []string{"pwd"}, s.Lines())
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	s := New(path, 10)
	require.NoError(t, s.Load())
	s.Add("sleep 1")
	s.Add("jobs")
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sleep 1\njobs\n", string(data))

	again := New(path, 10)
	require.NoError(t, again.Load())
	assert.Equal(t, []string{"sleep 1", "jobs"}, again.Lines())
}

func TestSave_TrimsToLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	s := New(path, 3)
	require.NoError(t, s.Load())
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		s.Add(l)
	}
	require.NoError(t, s.Save())

	assert.Equal(t, []string{"c", "d", "e"}, s.Lines())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "c\nd\ne\n", string(data))
}

func TestSave_MergesConcurrentSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	first := New(path, 10)
	second := New(path, 10)
	require.NoError(t, first.Load())
	require.NoError(t, second.Load())

	first.Add("from first")
	second.Add("from second")
	require.NoError(t, first.Save())
	require.NoError(t, second.Save())

	merged := New(path, 10)
	require.NoError(t, merged.Load())
	assert.Equal(t, []string{"old", "from first", "from second"}, merged.Lines())
}

func TestSave_TwiceDoesNotDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	s := New(path, 10)
	require.NoError(t, s.Load())
	s.Add("one")
	require.NoError(t, s.Save())
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(data))
}
