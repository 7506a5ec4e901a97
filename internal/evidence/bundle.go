package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vouchdev/vouch/internal/hashing"
)

// Bundle file names. scenario.json holds the document bytes exactly as
// received; stdout and stderr hold captured streams; lm/ holds opaque
// prompt and response passthroughs.
const (
	FileScenario = "scenario.json"
	FileMeta     = "meta.json"
	FileStdout   = "stdout"
	FileStderr   = "stderr"
	FileProblems = "problems"
	DirLM        = "lm"
	FileLMPrompt = "lm/prompt"
	FileLMReply  = "lm/response"
)

// ErrRunIDCollision means the bundle directory already existed. Run ids
// embed a millisecond timestamp, so a collision indicates clock trouble or
// a dirty evidence root, and the bundle is never reused.
var ErrRunIDCollision = errors.New("evidence bundle already exists for run id")

// Bundle is an append-only evidence directory under construction. Files
// are write-once; Seal writes meta.json last so a sealed bundle is always
// internally consistent.
type Bundle struct {
	runID  string
	dir    string
	sealed bool

	artifacts []ArtifactMeta
}

// CreateBundle makes <root>/evidence/<runID>/. The mkdir is the atomicity
// point: two runs can never share a directory.
func CreateBundle(root, runID string) (*Bundle, error) {
	parent := filepath.Join(root, "evidence")
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence root: %w", err)
	}
	dir := filepath.Join(parent, runID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunIDCollision, runID)
		}
		return nil, fmt.Errorf("create bundle dir: %w", err)
	}
	return &Bundle{runID: runID, dir: dir}, nil
}

// RunID returns the id the bundle was created under.
func (b *Bundle) RunID() string { return b.runID }

// Dir returns the bundle directory.
func (b *Bundle) Dir() string { return b.dir }

// WriteArtifact stores one hash-addressed file. Each name can be written
// exactly once, and nothing can be written after Seal.
func (b *Bundle) WriteArtifact(name string, data []byte) error {
	if b.sealed {
		return fmt.Errorf("bundle %s is sealed", b.runID)
	}
	path := filepath.Join(b.dir, filepath.FromSlash(name))
	if dir := filepath.Dir(path); dir != b.dir {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		return fmt.Errorf("create artifact %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close artifact %s: %w", name, err)
	}
	b.artifacts = append(b.artifacts, ArtifactMeta{
		Name:   name,
		Size:   int64(len(data)),
		SHA256: hashing.SHA256Hex(data),
	})
	return nil
}

// Seal fills the artifact list into meta and writes meta.json. After Seal
// the bundle is complete and immutable.
func (b *Bundle) Seal(meta Meta) error {
	if b.sealed {
		return fmt.Errorf("bundle %s is sealed", b.runID)
	}
	meta.Version = MetaVersion
	meta.RunID = b.runID
	meta.Artifacts = b.artifacts
	if meta.Artifacts == nil {
		meta.Artifacts = []ArtifactMeta{}
	}

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	raw = append(raw, '\n')

	path := filepath.Join(b.dir, FileMeta)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		return fmt.Errorf("create meta.json: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("write meta.json: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close meta.json: %w", err)
	}
	b.sealed = true
	return nil
}

// ReadMeta loads a sealed bundle's metadata.
func ReadMeta(bundleDir string) (*Meta, error) {
	raw, err := os.ReadFile(filepath.Join(bundleDir, FileMeta))
	if err != nil {
		return nil, fmt.Errorf("read meta.json: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse meta.json: %w", err)
	}
	return &meta, nil
}

// VerifyBundle re-hashes every artifact listed in a sealed bundle's
// metadata and reports mismatches, missing files, and files present but
// not listed.
func VerifyBundle(bundleDir string) ([]string, error) {
	meta, err := ReadMeta(bundleDir)
	if err != nil {
		return nil, err
	}
	var problems []string
	listed := map[string]bool{FileMeta: true}
	for _, art := range meta.Artifacts {
		listed[art.Name] = true
		path := filepath.Join(bundleDir, filepath.FromSlash(art.Name))
		sum, err := hashing.SHA256File(path)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", art.Name, err))
			continue
		}
		if sum != art.SHA256 {
			problems = append(problems, fmt.Sprintf("%s: sha256 mismatch", art.Name))
		}
	}
	err = filepath.WalkDir(bundleDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(bundleDir, path)
		if err != nil {
			return err
		}
		if !listed[filepath.ToSlash(rel)] {
			problems = append(problems, fmt.Sprintf("%s: not listed in meta.json", filepath.ToSlash(rel)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk bundle: %w", err)
	}
	return problems, nil
}
