// Package fixture implements the fixture store: a read-only catalog of
// manifest-described filesystem trees, and the materializer that instantiates
// one tree into an ephemeral, verified working directory per run.
package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/vouchdev/vouch/internal/canonical"
	"github.com/vouchdev/vouch/internal/hashing"
)

// Entry types in a manifest. Symlinks and special files are unsupported.
const (
	EntryFile = "file"
	EntryDir  = "dir"
)

// manifestVersion is the only supported manifest format version.
const manifestVersion = 1

// Manifest is the authoritative metadata for one fixture tree.
type Manifest struct {
	Version     int     `json:"version"`
	Description string  `json:"description"`
	Entries     []Entry `json:"entries"`
}

// Entry describes one file or directory in the fixture tree. Size and
// SHA256 are required for files and forbidden for directories.
type Entry struct {
	Path   string  `json:"path"`
	Type   string  `json:"type"`
	Mode   string  `json:"mode"`
	Size   *int64  `json:"size,omitempty"`
	SHA256 *string `json:"sha256,omitempty"`
	MTime  int64   `json:"mtime"`
}

// ParseMode converts the octal mode string to permission bits.
func (e Entry) ParseMode() (os.FileMode, error) {
	bits, err := strconv.ParseUint(e.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q for %s", e.Mode, e.Path)
	}
	return os.FileMode(bits) & os.ModePerm, nil
}

// LoadManifest reads and validates a manifest file. Unknown JSON fields are
// rejected: the manifest is the integrity root for the whole fixture.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks structural rules: supported version, clean unique paths,
// parseable modes, non-negative mtimes, and size/hash presence per entry
// type.
func (m *Manifest) Validate() error {
	if m.Version != manifestVersion {
		return fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	seen := make(map[string]bool, len(m.Entries))
	for _, entry := range m.Entries {
		if err := ValidateRelPath(entry.Path); err != nil {
			return err
		}
		if seen[entry.Path] {
			return fmt.Errorf("duplicate manifest entry %s", entry.Path)
		}
		seen[entry.Path] = true

		if _, err := entry.ParseMode(); err != nil {
			return err
		}
		if entry.MTime < 0 {
			return fmt.Errorf("entry %s: mtime must be >= 0", entry.Path)
		}
		switch entry.Type {
		case EntryFile:
			if entry.Size == nil || entry.SHA256 == nil {
				return fmt.Errorf("file entry %s missing size or sha256", entry.Path)
			}
		case EntryDir:
			if entry.Size != nil || entry.SHA256 != nil {
				return fmt.Errorf("dir entry %s must not include size or sha256", entry.Path)
			}
		case "symlink":
			return fmt.Errorf("entry %s: symlink entries are not supported", entry.Path)
		default:
			return fmt.Errorf("entry %s: unsupported entry type %q", entry.Path, entry.Type)
		}
	}
	return nil
}

// Hash computes the manifest's content hash over its canonical JSON form
// with entries sorted by path. The sorted form makes the hash independent of
// entry order on disk.
func (m *Manifest) Hash() (string, error) {
	entries := make([]Entry, len(m.Entries))
	copy(entries, m.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	list := make([]any, len(entries))
	for i, e := range entries {
		obj := map[string]any{
			"path":  e.Path,
			"type":  e.Type,
			"mode":  e.Mode,
			"mtime": e.MTime,
		}
		if e.Size != nil {
			obj["size"] = *e.Size
		}
		if e.SHA256 != nil {
			obj["sha256"] = *e.SHA256
		}
		list[i] = obj
	}
	payload, err := canonical.Marshal(map[string]any{
		"version":     int64(m.Version),
		"description": m.Description,
		"entries":     list,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize manifest: %w", err)
	}
	return hashing.WithDomain(hashing.DomainManifest, payload), nil
}
