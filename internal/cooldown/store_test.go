package cooldown

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooldowns", "cooldowns.toml")

	s := Open(path)
	s.Put("FireBoltCD", 5000)
	require.NoError(t, s.LastError())

	reopened := Open(path)
	v, ok := reopened.Get("fireboltcd")
	require.True(t, ok)
	assert.Equal(t, int64(5000), v)

	v, ok = reopened.Get("FIREBOLTCD")
	require.True(t, ok)
	assert.Equal(t, int64(5000), v)
}

func TestPutRewritesWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooldowns.toml")

	s := Open(path)
	s.Put("a", 1)
	s.Put("b", 2)
	s.Put("A", 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, header))
	assert.Equal(t, 1, strings.Count(text, "a = "))
	assert.Contains(t, text, "a = 3")
	assert.Contains(t, text, "b = 2")

	assert.Equal(t, []Entry{{Name: "a", Value: 3}, {Name: "b", Value: 2}}, Open(path).All())
}

func TestOpenMissingFile(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Empty(t, s.All())
	_, ok := s.Get("anything")
	assert.False(t, ok)
}

func TestOpenMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooldowns.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is = = not toml"), 0o644))

	s := Open(path)
	assert.Empty(t, s.All())
}

func TestOpenSkipsMalformedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooldowns.toml")
	content := "good = 42\nbad = \"soon\"\nFloaty = 1.5\nMixed = 7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := Open(path)
	assert.Equal(t, []Entry{{Name: "good", Value: 42}, {Name: "mixed", Value: 7}}, s.All())
}

func TestOpenKeepsValidLinesOfBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooldowns.toml")
	content := header + "good = 42\nbroken = soon\n\nOther = 7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := Open(path)
	assert.Equal(t, []Entry{{Name: "good", Value: 42}, {Name: "other", Value: 7}}, s.All())

	s.Put("fresh", 1)
	require.NoError(t, s.LastError())
	reopened := Open(path)
	assert.Equal(t, []Entry{{Name: "fresh", Value: 1}, {Name: "good", Value: 42}, {Name: "other", Value: 7}}, reopened.All())
}

func TestPutFailureKeepsValue(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// the parent of the store path is a regular file, so the rewrite fails
	s := Open(filepath.Join(blocker, "cooldowns.toml"))
	s.Put("cd", 10)

	v, ok := s.Get("cd")
	require.True(t, ok)
	assert.Equal(t, int64(10), v)

	var perr *PersistenceError
	require.True(t, errors.As(s.LastError(), &perr))
	assert.Equal(t, filepath.Join(blocker, "cooldowns.toml"), perr.Path)
}
