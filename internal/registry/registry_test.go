package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistryFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "agents.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewLoadsValidRegistry(t *testing.T) {
	path := writeRegistryFile(t, t.TempDir(), `[
		{"id": "claude", "cmd": "claude", "args": ["{prompt}"], "default": true, "enabled": true}
	]`)

	r, err := New(path)
	require.NoError(t, err)

	agents := r.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "claude", agents[0].ID)
}

func TestNewRejectsEntryMissingCmd(t *testing.T) {
	path := writeRegistryFile(t, t.TempDir(), `[{"id": "broken", "args": ["x"]}]`)

	_, err := New(path)
	assert.Error(t, err)
}

func TestReloadKeepsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistryFile(t, dir, `[{"id": "claude", "cmd": "claude", "args": ["{prompt}"]}]`)

	r, err := New(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	assert.Error(t, r.Reload())

	agents := r.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "claude", agents[0].ID)
}

func TestNewWritesDefaultWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")

	r, err := New(path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)

	agents := r.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "noop", agents[0].ID)
}

func TestReloadSwapsInNewAgents(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistryFile(t, dir, `[{"id": "a", "cmd": "a", "args": ["{prompt}"]}]`)

	r, err := New(path)
	require.NoError(t, err)

	writeRegistryFile(t, dir, `[{"id": "b", "cmd": "b", "args": ["{prompt}"]}]`)
	require.NoError(t, r.Reload())

	agents := r.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "b", agents[0].ID)
}

func TestNewFallsBackToYAMLWhenJSONMissing(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "agents.json")
	yamlPath := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- id: claude
  cmd: claude
  args: ["{prompt}"]
  default: true
  enabled: true
`), 0o644))

	r, err := New(jsonPath)
	require.NoError(t, err)

	_, statErr := os.Stat(jsonPath)
	assert.True(t, os.IsNotExist(statErr), "agents.json should not be written when agents.yaml already exists")

	agents := r.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "claude", agents[0].ID)

	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- id: codex
  cmd: codex
  args: ["{prompt}"]
`), 0o644))
	require.NoError(t, r.Reload())

	agents = r.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "codex", agents[0].ID)
}
