package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vouchdev/vouch/internal/hashing"
)

// cliEnv is a full on-disk environment for driving commands end to end:
// fixture store, config file pinned to direct sandbox mode, target script,
// and a scenario document.
type cliEnv struct {
	root       string
	configPath string
	binPath    string
}

func newCLIEnv(t *testing.T, script string) *cliEnv {
	t.Helper()
	root := t.TempDir()

	fixDir := filepath.Join(root, "fixtures", "fs", "demo")
	tree := filepath.Join(fixDir, "tree")
	require.NoError(t, os.MkdirAll(tree, 0o755))
	content := "hello from fixture\n"
	require.NoError(t, os.WriteFile(filepath.Join(tree, "hello.txt"), []byte(content), 0o644))

	manifest := fmt.Sprintf(`{
		"version": 1,
		"description": "demo",
		"entries": [
			{"path": "hello.txt", "type": "file", "mode": "644",
			 "mtime": 1700000000, "size": %d, "sha256": %q}
		]
	}`, len(content), hashing.SHA256Hex([]byte(content)))
	require.NoError(t, os.WriteFile(filepath.Join(fixDir, "manifest.json"), []byte(manifest), 0o644))

	catalog := `{"fixtures":[{"id":"fs/demo","description":"demo fixture"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "fixtures", "catalog.json"), []byte(catalog), 0o644))

	binPath := filepath.Join(root, "target-tool")
	require.NoError(t, os.WriteFile(binPath, []byte("#!/bin/sh\n"+script+"\n"), 0o755))

	configPath := filepath.Join(root, "vouch.yaml")
	configYAML := fmt.Sprintf(
		"fixtures_root: %s\nevidence_root: %s\nindex_path: %s\nsandbox: direct\n",
		filepath.Join(root, "fixtures"),
		filepath.Join(root, "out"),
		filepath.Join(root, "out", "runs.db"),
	)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "out"), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0o644))

	return &cliEnv{root: root, configPath: configPath, binPath: binPath}
}

// writeScenario drops a well-formed scenario document and returns its path.
func (e *cliEnv) writeScenario(t *testing.T, mutate func(map[string]any)) string {
	t.Helper()
	doc := map[string]any{
		"id":        "demo_run",
		"rationale": "check default behavior against the demo fixture",
		"binary":    map[string]any{"path": e.binPath},
		"args":      []any{},
		"fixture":   map[string]any{"id": "fs/demo"},
		"limits": map[string]any{
			"wall_time_ms": 5000,
			"cpu_time_ms":  2000,
			"memory_kb":    262144,
			"file_size_kb": 1024,
		},
		"artifacts": map[string]any{
			"capture_stdout":    true,
			"capture_stderr":    true,
			"capture_exit_code": true,
		},
	}
	if mutate != nil {
		mutate(doc)
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(e.root, "scenario.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

// execute runs the root command with args and captures both streams.
func execute(args ...string) (string, string, error) {
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeResponse parses a JSON-mode CLIResponse.
func decodeResponse(t *testing.T, raw string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp), "output: %s", raw)
	return resp
}

// dataMap extracts the data payload as a map.
func dataMap(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}
