package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflowYAML = `
name: cli
nodes:
  - id: data
    type: data.source
    params:
      rows: 50
  - id: stats
    type: stats.describe
edges:
  - source_node: data
    source_port: table
    target_node: stats
    target_port: table
`

// execute runs the CLI with an isolated config and cache directory.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	base := []string{"--config", filepath.Join(dir, "missing.yaml"), "--cache-dir", filepath.Join(dir, "cache")}
	cmd.SetArgs(append(args, base...))
	err := cmd.Execute()
	return out.String(), err
}

func writeWorkflow(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type reportJSON struct {
	Workflow string `json:"workflow"`
	Nodes    map[string]struct {
		Status   string `json:"status"`
		CacheHit bool   `json:"cache_hit"`
		Invoked  bool   `json:"invoked"`
	} `json:"nodes"`
}

func TestCLI_RunTwice(t *testing.T) {
	dir := t.TempDir()
	wf := writeWorkflow(t, dir, workflowYAML)

	out, err := execute(t, dir, "run", wf, "--json")
	require.NoError(t, err)
	var first reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, "cli", first.Workflow)
	assert.True(t, first.Nodes["data"].Invoked)
	assert.Equal(t, "succeeded", first.Nodes["stats"].Status)

	out, err = execute(t, dir, "run", wf, "--json")
	require.NoError(t, err)
	var second reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.True(t, second.Nodes["data"].CacheHit)
	assert.True(t, second.Nodes["stats"].CacheHit)

	out, err = execute(t, dir, "run", wf, "--force", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "1 invoked, 1 cached")
}

func TestCLI_Validate(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "validate", writeWorkflow(t, dir, workflowYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow cli is valid")

	broken := workflowYAML + "  - source_node: stats\n    source_port: metrics\n    target_node: data\n    target_port: table\n"
	out, err = execute(t, dir, "validate", writeWorkflow(t, dir, broken))
	assert.Error(t, err)
	assert.Contains(t, out, "issue(s)")
}

func TestCLI_CacheAndNodes(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "run", writeWorkflow(t, dir, workflowYAML))
	require.NoError(t, err)

	out, err := execute(t, dir, "cache", "size", "--bytes")
	require.NoError(t, err)
	assert.NotEqual(t, "0\n", out)

	out, err = execute(t, dir, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared")

	out, err = execute(t, dir, "cache", "size", "--bytes")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)

	out, err = execute(t, dir, "nodes")
	require.NoError(t, err)
	assert.Contains(t, out, "data.source")
	assert.Contains(t, out, "model.linear")

	out, err = execute(t, dir, "nodes", "model.linear")
	require.NoError(t, err)
	assert.Contains(t, out, "model.linear")
	assert.Contains(t, out, "weights")
	assert.NotContains(t, out, "data.source")

	_, err = execute(t, dir, "nodes", "no.such")
	assert.ErrorContains(t, err, "unknown node type")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
}
