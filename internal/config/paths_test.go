package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathsHonorsHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SQUIRE_HOME", dir)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, dir, p.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p.Config)
	assert.Equal(t, filepath.Join(dir, "data"), p.Data)
	assert.Equal(t, filepath.Join(dir, "logs"), p.Logs)
}

func TestResolvePathsDefault(t *testing.T) {
	t.Setenv("SQUIRE_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".squire"), p.Base)
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SQUIRE_HOME", filepath.Join(dir, "nested"))

	p, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, p.EnsureDirs())

	for _, d := range []string{p.Base, p.Data, p.Logs} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestParseConfigPath(t *testing.T) {
	parts, err := ParseConfigPath("backend.model")
	require.NoError(t, err)
	assert.Equal(t, []string{"backend", "model"}, parts)

	_, err = ParseConfigPath("")
	assert.Error(t, err)
	_, err = ParseConfigPath("backend..model")
	assert.Error(t, err)
	_, err = ParseConfigPath("backend.__proto__")
	assert.Error(t, err)
}

func TestPathValueAccess(t *testing.T) {
	root := map[string]any{}

	SetValueAtPath(root, []string{"backend", "model"}, "opus")
	val, ok := GetValueAtPath(root, []string{"backend", "model"})
	require.True(t, ok)
	assert.Equal(t, "opus", val)

	_, ok = GetValueAtPath(root, []string{"backend", "missing"})
	assert.False(t, ok)

	assert.True(t, UnsetValueAtPath(root, []string{"backend", "model"}))
	assert.False(t, UnsetValueAtPath(root, []string{"backend", "model"}))
}
