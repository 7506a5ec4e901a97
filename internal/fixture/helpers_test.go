package fixture

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vouchdev/vouch/internal/hashing"
)

func ptr[T any](v T) *T { return &v }

// fileSpec describes one file to place in a test fixture tree.
type fileSpec struct {
	path    string
	content string
	mode    string
}

// writeFixture lays out <dir>/manifest.json and <dir>/tree/ from specs and
// returns the manifest it wrote. Directories are inferred from file parents
// plus any listed explicitly in extraDirs.
func writeFixture(t *testing.T, dir string, files []fileSpec, extraDirs []string) *Manifest {
	t.Helper()
	tree := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(tree, 0o755))

	const stamp = int64(1700000000)
	manifest := &Manifest{Version: 1, Description: "test fixture"}

	seenDirs := map[string]bool{}
	addDir := func(rel string) {
		for rel != "." && rel != "" && !seenDirs[rel] {
			seenDirs[rel] = true
			rel = filepath.ToSlash(filepath.Dir(rel))
		}
	}
	for _, f := range files {
		addDir(filepath.ToSlash(filepath.Dir(f.path)))
	}
	for _, d := range extraDirs {
		addDir(d)
	}
	for d := range seenDirs {
		require.NoError(t, os.MkdirAll(filepath.Join(tree, filepath.FromSlash(d)), 0o755))
		manifest.Entries = append(manifest.Entries, Entry{
			Path: d, Type: EntryDir, Mode: "755", MTime: stamp,
		})
	}

	for _, f := range files {
		mode := f.mode
		if mode == "" {
			mode = "644"
		}
		full := filepath.Join(tree, filepath.FromSlash(f.path))
		require.NoError(t, os.WriteFile(full, []byte(f.content), 0o644))
		when := time.Unix(stamp, 0).UTC()
		require.NoError(t, os.Chtimes(full, when, when))
		manifest.Entries = append(manifest.Entries, Entry{
			Path:   f.path,
			Type:   EntryFile,
			Mode:   mode,
			MTime:  stamp,
			Size:   ptr(int64(len(f.content))),
			SHA256: ptr(hashing.SHA256Hex([]byte(f.content))),
		})
	}

	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), raw, 0o644))
	return manifest
}

// basicFixture creates a small two-file fixture and returns its directory.
func basicFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFixture(t, dir, []fileSpec{
		{path: "input.txt", content: "hello\n"},
		{path: "sub/data.bin", content: "payload"},
	}, []string{"empty"})
	return dir
}
