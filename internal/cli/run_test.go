package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommandHappyPath(t *testing.T) {
	env := newCLIEnv(t, "cat hello.txt")
	scen := env.writeScenario(t, nil)

	out, _, err := execute("run", "--config", env.configPath, "--binary", env.binPath,
		"--format", "json", scen)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := dataMap(t, resp)
	runID, _ := data["run_id"].(string)
	assert.True(t, strings.HasPrefix(runID, "demo_run-"), runID)

	bundleDir, _ := data["bundle_dir"].(string)
	stdout, err := os.ReadFile(filepath.Join(bundleDir, "stdout"))
	require.NoError(t, err)
	assert.Equal(t, "hello from fixture\n", string(stdout))

	oc, ok := data["outcome"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "exited", oc["kind"])
	assert.Equal(t, float64(0), oc["exit_code"])
}

func TestRunCommandTextOutput(t *testing.T) {
	env := newCLIEnv(t, "true")
	scen := env.writeScenario(t, nil)

	out, _, err := execute("run", "--config", env.configPath, "--binary", env.binPath, scen)
	require.NoError(t, err)
	assert.Contains(t, out, "run:")
	assert.Contains(t, out, "outcome: exited(0)")
}

func TestRunCommandRejectedScenarioStillSealsEvidence(t *testing.T) {
	env := newCLIEnv(t, "true")
	scen := env.writeScenario(t, func(doc map[string]any) {
		doc["fixture"] = map[string]any{"id": "fs/missing"}
	})

	out, _, err := execute("run", "--config", env.configPath, "--binary", env.binPath,
		"--format", "json", scen)
	require.NoError(t, err, "a classified rejection is not a command failure")

	data := dataMap(t, decodeResponse(t, out))
	oc, ok := data["outcome"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "schema_invalid", oc["kind"])

	rej, ok := data["reject"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "R231", rej["code"])

	bundleDir, _ := data["bundle_dir"].(string)
	assert.FileExists(t, filepath.Join(bundleDir, "meta.json"))
	assert.FileExists(t, filepath.Join(bundleDir, "scenario.json"))
}

func TestRunCommandReadsStdin(t *testing.T) {
	env := newCLIEnv(t, "true")
	scen := env.writeScenario(t, nil)
	raw, err := os.ReadFile(scen)
	require.NoError(t, err)

	cmd := NewRootCommand()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetErr(&strings.Builder{})
	cmd.SetIn(strings.NewReader(string(raw)))
	cmd.SetArgs([]string{"run", "--config", env.configPath, "--binary", env.binPath,
		"--format", "json", "-"})
	require.NoError(t, cmd.Execute())

	data := dataMap(t, decodeResponse(t, out.String()))
	assert.NotEmpty(t, data["run_id"])
}

func TestRunCommandStoresLMTranscript(t *testing.T) {
	env := newCLIEnv(t, "true")
	scen := env.writeScenario(t, nil)
	prompt := filepath.Join(env.root, "prompt.txt")
	response := filepath.Join(env.root, "response.txt")
	require.NoError(t, os.WriteFile(prompt, []byte("producer prompt"), 0o644))
	require.NoError(t, os.WriteFile(response, []byte("producer response"), 0o644))

	out, _, err := execute("run", "--config", env.configPath, "--binary", env.binPath,
		"--lm-prompt", prompt, "--lm-response", response, "--format", "json", scen)
	require.NoError(t, err)

	data := dataMap(t, decodeResponse(t, out))
	bundleDir, _ := data["bundle_dir"].(string)
	got, err := os.ReadFile(filepath.Join(bundleDir, "lm", "prompt"))
	require.NoError(t, err)
	assert.Equal(t, "producer prompt", string(got))
}

func TestRunCommandMissingScenarioFile(t *testing.T) {
	env := newCLIEnv(t, "true")

	_, _, err := execute("run", "--config", env.configPath, "--binary", env.binPath,
		filepath.Join(env.root, "nope.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandUnresolvableTargetBinary(t *testing.T) {
	env := newCLIEnv(t, "true")
	scen := env.writeScenario(t, nil)

	_, _, err := execute("run", "--config", env.configPath,
		"--binary", filepath.Join(env.root, "missing-tool"), scen)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandRequiresBinaryFlag(t *testing.T) {
	env := newCLIEnv(t, "true")
	scen := env.writeScenario(t, nil)

	_, _, err := execute("run", "--config", env.configPath, scen)
	require.Error(t, err)
}
