package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vouchdev/vouch/internal/identity"
	"github.com/vouchdev/vouch/internal/outcome"
	"github.com/vouchdev/vouch/internal/scenario"
)

func newSealedBundle(t *testing.T) (*Bundle, string) {
	t.Helper()
	root := t.TempDir()
	b, err := CreateBundle(root, "demo-0123456789ab-1700000000000")
	require.NoError(t, err)

	require.NoError(t, b.WriteArtifact(FileScenario, []byte(`{"id":"demo"}`)))
	require.NoError(t, b.WriteArtifact(FileStdout, []byte("demo output\n")))
	require.NoError(t, b.WriteArtifact(FileStderr, nil))
	require.NoError(t, b.Seal(sampleMeta()))
	return b, root
}

func outcomePtr(o outcome.Outcome) *outcome.Outcome { return &o }

func sampleMeta() Meta {
	return Meta{
		CreatedAtMS: 1700000000000,
		Tool:        ToolMeta{Name: "vouch", Version: "0.1.0"},
		Scenario: &ScenarioMeta{
			ID:        "demo",
			Rationale: "exercise the happy path",
			SHA256:    "2b67bf9bbf4bbcaf60ea7df1f970eee71425d927e00edb4a1de3ddc28ecc0991",
		},
		Binary: &BinaryMeta{
			InvokedPath:  "/usr/bin/demo",
			ResolvedPath: "/usr/bin/demo",
			SHA256:       strings.Repeat("ab", 32),
			Platform:     identity.Platform{OS: "linux", Arch: "amd64"},
		},
		Fixture: &FixtureMeta{ID: "fs/empty_dir", ManifestSHA256: strings.Repeat("cd", 32)},
		Sandbox: &SandboxMeta{
			Mode: "direct",
			Env:  []string{"LC_ALL=C", "TZ=UTC", "TERM=dumb", "PATH=/bin:/usr/bin"},
			Limits: scenario.Limits{
				WallTimeMS: 200, CPUTimeMS: 100, MemoryKB: 65536, FileSizeKB: 1024,
			},
		},
		Outcome: outcomePtr(outcome.NewExited(0)),
		Result: &ResultMeta{
			WallTimeMS: 5, CPUTimeMS: 2, MaxRSSKB: 1024,
		},
	}
}

func TestBundleSealGolden(t *testing.T) {
	b, _ := newSealedBundle(t)

	raw, err := os.ReadFile(filepath.Join(b.Dir(), FileMeta))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "meta_sealed", raw)
}

func TestBundleRoundTrip(t *testing.T) {
	b, _ := newSealedBundle(t)

	meta, err := ReadMeta(b.Dir())
	require.NoError(t, err)
	assert.Equal(t, MetaVersion, meta.Version)
	assert.Equal(t, b.RunID(), meta.RunID)
	require.NotNil(t, meta.Outcome)
	assert.Equal(t, outcome.Exited, meta.Outcome.Kind)
	require.Len(t, meta.Artifacts, 3)
	assert.Equal(t, FileScenario, meta.Artifacts[0].Name)
	assert.Equal(t, int64(13), meta.Artifacts[0].Size)
}

func TestBundleVerifyClean(t *testing.T) {
	b, _ := newSealedBundle(t)

	problems, err := VerifyBundle(b.Dir())
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestBundleVerifyDetectsTamper(t *testing.T) {
	b, _ := newSealedBundle(t)
	path := filepath.Join(b.Dir(), FileStdout)
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("altered\n"), 0o644))

	problems, err := VerifyBundle(b.Dir())
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "sha256 mismatch")
}

func TestBundleVerifyDetectsStrayFile(t *testing.T) {
	b, _ := newSealedBundle(t)
	require.NoError(t, os.WriteFile(filepath.Join(b.Dir(), "extra"), []byte("x"), 0o644))

	problems, err := VerifyBundle(b.Dir())
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "not listed")
}

func TestBundleCollision(t *testing.T) {
	root := t.TempDir()
	_, err := CreateBundle(root, "same-id")
	require.NoError(t, err)

	_, err = CreateBundle(root, "same-id")
	require.ErrorIs(t, err, ErrRunIDCollision)
}

func TestBundleArtifactWriteOnce(t *testing.T) {
	root := t.TempDir()
	b, err := CreateBundle(root, "once")
	require.NoError(t, err)

	require.NoError(t, b.WriteArtifact(FileStdout, []byte("a")))
	assert.Error(t, b.WriteArtifact(FileStdout, []byte("b")))
}

func TestBundleSealIsFinal(t *testing.T) {
	root := t.TempDir()
	b, err := CreateBundle(root, "final")
	require.NoError(t, err)
	require.NoError(t, b.Seal(Meta{Outcome: outcomePtr(outcome.NewExited(0))}))

	assert.Error(t, b.WriteArtifact(FileStdout, []byte("late")))
	assert.Error(t, b.Seal(Meta{}))
}

func TestBundleNestedArtifactPath(t *testing.T) {
	root := t.TempDir()
	b, err := CreateBundle(root, "lm-run")
	require.NoError(t, err)

	require.NoError(t, b.WriteArtifact(FileLMPrompt, []byte("opaque prompt")))
	require.NoError(t, b.WriteArtifact(FileLMReply, []byte("opaque response")))
	require.NoError(t, b.Seal(Meta{Outcome: outcomePtr(outcome.NewExited(0))}))

	problems, err := VerifyBundle(b.Dir())
	require.NoError(t, err)
	assert.Empty(t, problems)
}
