package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CatalogEntry is one fixture listed in catalog.json.
type CatalogEntry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Catalog is the loaded fixture store index. Every listed fixture has been
// checked to exist on disk with a manifest and a tree.
type Catalog struct {
	root    string
	entries map[string]CatalogEntry
}

type catalogFile struct {
	Fixtures []CatalogEntry `json:"fixtures"`
}

// LoadCatalog reads <root>/catalog.json and verifies that every listed
// fixture directory exists with a manifest.json and a tree/ directory.
// Manifest contents are validated lazily at materialization, not here.
func LoadCatalog(root string) (*Catalog, error) {
	path := filepath.Join(root, "catalog.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	entries := make(map[string]CatalogEntry, len(file.Fixtures))
	for _, entry := range file.Fixtures {
		if err := ValidateRelPath(entry.ID); err != nil {
			return nil, fmt.Errorf("catalog entry id: %w", err)
		}
		if entry.Description == "" {
			return nil, fmt.Errorf("catalog entry %s: description is required", entry.ID)
		}
		if _, dup := entries[entry.ID]; dup {
			return nil, fmt.Errorf("catalog lists fixture %s twice", entry.ID)
		}

		dir := filepath.Join(root, filepath.FromSlash(entry.ID))
		if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
			return nil, fmt.Errorf("fixture %s: manifest.json missing: %w", entry.ID, err)
		}
		info, err := os.Stat(filepath.Join(dir, "tree"))
		if err != nil {
			return nil, fmt.Errorf("fixture %s: tree/ missing: %w", entry.ID, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("fixture %s: tree is not a directory", entry.ID)
		}
		entries[entry.ID] = entry
	}
	return &Catalog{root: root, entries: entries}, nil
}

// Has reports whether the fixture id is listed in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// Dir returns the on-disk directory for a catalogued fixture.
func (c *Catalog) Dir(id string) string {
	return filepath.Join(c.root, filepath.FromSlash(id))
}

// Entries returns the catalog entries sorted by id.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
