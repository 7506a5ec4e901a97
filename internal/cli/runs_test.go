package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedRun executes one scenario through the CLI and returns its run id and
// bundle dir.
func seedRun(t *testing.T, env *cliEnv) (string, string) {
	t.Helper()
	scen := env.writeScenario(t, nil)
	out, _, err := execute("run", "--config", env.configPath, "--binary", env.binPath,
		"--format", "json", scen)
	require.NoError(t, err)
	data := dataMap(t, decodeResponse(t, out))
	return data["run_id"].(string), data["bundle_dir"].(string)
}

func TestRunsListCommand(t *testing.T) {
	env := newCLIEnv(t, "true")
	runID, _ := seedRun(t, env)

	out, _, err := execute("runs", "list", "--config", env.configPath, "--format", "json")
	require.NoError(t, err)

	data := dataMap(t, decodeResponse(t, out))
	runs, ok := data["runs"].([]any)
	require.True(t, ok)
	require.Len(t, runs, 1)
	first := runs[0].(map[string]any)
	assert.Equal(t, runID, first["run_id"])
	assert.Equal(t, "exited", first["outcome"])
}

func TestRunsListFilterMiss(t *testing.T) {
	env := newCLIEnv(t, "true")
	seedRun(t, env)

	out, _, err := execute("runs", "list", "--config", env.configPath,
		"--scenario", "other_scenario", "--format", "json")
	require.NoError(t, err)

	data := dataMap(t, decodeResponse(t, out))
	runs, ok := data["runs"].([]any)
	require.True(t, ok)
	assert.Empty(t, runs)
}

func TestRunsShowCommandVerifies(t *testing.T) {
	env := newCLIEnv(t, "true")
	runID, _ := seedRun(t, env)

	out, _, err := execute("runs", "show", runID, "--config", env.configPath, "--format", "json")
	require.NoError(t, err)

	data := dataMap(t, decodeResponse(t, out))
	assert.Equal(t, true, data["verified"])
	meta, ok := data["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, runID, meta["run_id"])
}

func TestRunsShowCommandDetectsTamper(t *testing.T) {
	env := newCLIEnv(t, "true")
	runID, bundleDir := seedRun(t, env)

	target := filepath.Join(bundleDir, "stdout")
	require.NoError(t, os.Chmod(target, 0o644))
	require.NoError(t, os.WriteFile(target, []byte("forged\n"), 0o644))

	out, _, err := execute("runs", "show", runID, "--config", env.configPath, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	data := dataMap(t, decodeResponse(t, out))
	assert.Equal(t, false, data["verified"])
}

func TestRunsShowCommandNotFound(t *testing.T) {
	env := newCLIEnv(t, "true")
	seedRun(t, env)

	_, _, err := execute("runs", "show", "no-such-run", "--config", env.configPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
