package fixture

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vouchdev/vouch/internal/hashing"
)

// IntegrityError reports a fixture tree that does not match its manifest.
// It is distinct from plain errors so callers can classify the run as a
// fixture failure rather than an internal one.
type IntegrityError struct {
	FixtureDir string
	Problems   []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("fixture %s failed integrity check: %s",
		e.FixtureDir, strings.Join(e.Problems, "; "))
}

// Materialized is an instantiated fixture working directory. Close removes
// it unless keep was requested.
type Materialized struct {
	// Root is the directory the scenario process runs in.
	Root string
	// ManifestHash is the content hash of the fixture's manifest.
	ManifestHash string

	base string
	keep bool
}

// Close removes the working directory.
func (m *Materialized) Close() error {
	if m.keep {
		return nil
	}
	return os.RemoveAll(m.base)
}

// Materialize instantiates the fixture at fixtureDir into a fresh temp
// working directory named by token. The source tree is verified against the
// manifest, copied entry by entry, has its modes and mtimes applied, and the
// copy is then re-verified in full. Any mismatch at either stage is an
// *IntegrityError.
func Materialize(fixtureDir, token string, keep bool) (*Materialized, error) {
	manifest, err := LoadManifest(filepath.Join(fixtureDir, "manifest.json"))
	if err != nil {
		return nil, &IntegrityError{FixtureDir: fixtureDir, Problems: []string{err.Error()}}
	}
	hash, err := manifest.Hash()
	if err != nil {
		return nil, err
	}

	src := filepath.Join(fixtureDir, "tree")
	if problems := verifyTree(src, manifest, false); len(problems) > 0 {
		return nil, &IntegrityError{FixtureDir: fixtureDir, Problems: problems}
	}

	base, err := os.MkdirTemp("", "vouch-"+token+"-")
	if err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	root := filepath.Join(base, "work")
	if err := os.Mkdir(root, 0o755); err != nil {
		os.RemoveAll(base)
		return nil, fmt.Errorf("create workdir root: %w", err)
	}

	if err := copyTree(src, root, manifest); err != nil {
		os.RemoveAll(base)
		return nil, err
	}
	if problems := verifyTree(root, manifest, true); len(problems) > 0 {
		os.RemoveAll(base)
		return nil, &IntegrityError{FixtureDir: fixtureDir, Problems: problems}
	}

	return &Materialized{Root: root, ManifestHash: hash, base: base, keep: keep}, nil
}

// Verify checks the fixture's source tree against its manifest without
// materializing anything, and returns the manifest hash. Source trees are
// checked for content (existence, type, size, sha256) and extra entries;
// mode and mtime are enforced only on materialized copies.
func Verify(fixtureDir string) (string, error) {
	manifest, err := LoadManifest(filepath.Join(fixtureDir, "manifest.json"))
	if err != nil {
		return "", &IntegrityError{FixtureDir: fixtureDir, Problems: []string{err.Error()}}
	}
	hash, err := manifest.Hash()
	if err != nil {
		return "", err
	}
	if problems := verifyTree(filepath.Join(fixtureDir, "tree"), manifest, false); len(problems) > 0 {
		return "", &IntegrityError{FixtureDir: fixtureDir, Problems: problems}
	}
	return hash, nil
}

// copyTree copies exactly the manifest's entries from src to dst, then
// applies modes and mtimes. Directory mtimes are applied last, deepest
// first, because writing children disturbs them.
func copyTree(src, dst string, manifest *Manifest) error {
	entries := make([]Entry, len(manifest.Entries))
	copy(entries, manifest.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	for _, entry := range entries {
		from := filepath.Join(src, filepath.FromSlash(entry.Path))
		to := filepath.Join(dst, filepath.FromSlash(entry.Path))
		switch entry.Type {
		case EntryDir:
			if err := os.MkdirAll(to, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", entry.Path, err)
			}
		case EntryFile:
			if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
				return fmt.Errorf("create parent of %s: %w", entry.Path, err)
			}
			if err := copyFile(from, to); err != nil {
				return err
			}
		}
	}

	for _, entry := range entries {
		mode, err := entry.ParseMode()
		if err != nil {
			return err
		}
		to := filepath.Join(dst, filepath.FromSlash(entry.Path))
		if err := os.Chmod(to, mode); err != nil {
			return fmt.Errorf("chmod %s: %w", entry.Path, err)
		}
		if entry.Type == EntryFile {
			stamp := time.Unix(entry.MTime, 0).UTC()
			if err := os.Chtimes(to, stamp, stamp); err != nil {
				return fmt.Errorf("set mtime of %s: %w", entry.Path, err)
			}
		}
	}

	dirs := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == EntryDir {
			dirs = append(dirs, entry)
		}
	}
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i].Path, "/") > strings.Count(dirs[j].Path, "/")
	})
	for _, entry := range dirs {
		stamp := time.Unix(entry.MTime, 0).UTC()
		to := filepath.Join(dst, filepath.FromSlash(entry.Path))
		if err := os.Chtimes(to, stamp, stamp); err != nil {
			return fmt.Errorf("set mtime of %s: %w", entry.Path, err)
		}
	}
	return nil
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("open %s: %w", from, err)
	}
	defer in.Close()

	out, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", to, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", to, err)
	}
	return out.Close()
}

// verifyTree checks a tree against the manifest in both directions: every
// entry must be present and correct, and the tree must contain nothing the
// manifest does not list. Symlinks anywhere fail the check. When meta is
// set, modes and mtimes are compared as well.
func verifyTree(root string, manifest *Manifest, meta bool) []string {
	var problems []string
	known := make(map[string]Entry, len(manifest.Entries))
	for _, entry := range manifest.Entries {
		known[entry.Path] = entry
	}

	for _, entry := range manifest.Entries {
		full := filepath.Join(root, filepath.FromSlash(entry.Path))
		info, err := os.Lstat(full)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: missing", entry.Path))
			continue
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			problems = append(problems, fmt.Sprintf("%s: is a symlink", entry.Path))
			continue
		}
		switch entry.Type {
		case EntryDir:
			if !info.IsDir() {
				problems = append(problems, fmt.Sprintf("%s: expected dir, found file", entry.Path))
				continue
			}
		case EntryFile:
			if !info.Mode().IsRegular() {
				problems = append(problems, fmt.Sprintf("%s: expected regular file", entry.Path))
				continue
			}
			if info.Size() != *entry.Size {
				problems = append(problems, fmt.Sprintf("%s: size %d, manifest says %d",
					entry.Path, info.Size(), *entry.Size))
			}
			sum, err := hashing.SHA256File(full)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: hash: %v", entry.Path, err))
			} else if sum != *entry.SHA256 {
				problems = append(problems, fmt.Sprintf("%s: sha256 mismatch", entry.Path))
			}
		}
		if meta {
			want, err := entry.ParseMode()
			if err != nil {
				problems = append(problems, err.Error())
				continue
			}
			if got := info.Mode() & fs.ModePerm; got != want {
				problems = append(problems, fmt.Sprintf("%s: mode %04o, manifest says %04o",
					entry.Path, got, want))
			}
			if got := info.ModTime().Unix(); got != entry.MTime {
				problems = append(problems, fmt.Sprintf("%s: mtime %d, manifest says %d",
					entry.Path, got, entry.MTime))
			}
		}
	}

	walkErr := filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if full == root {
			return nil
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.Type()&fs.ModeSymlink != 0 {
			problems = append(problems, fmt.Sprintf("%s: symlink not in manifest", rel))
			return nil
		}
		if _, ok := known[rel]; !ok {
			problems = append(problems, fmt.Sprintf("%s: not in manifest", rel))
		}
		return nil
	})
	if walkErr != nil {
		problems = append(problems, fmt.Sprintf("walk tree: %v", walkErr))
	}
	return problems
}
