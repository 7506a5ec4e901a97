package fixture

import (
	"fmt"
	"path"
	"strings"
)

// ValidateRelPath checks that a manifest path or fixture id is a clean,
// slash-separated relative path: non-empty, not absolute, no "." or ".."
// components, no empty segments. Fixture ids and manifest entries are joined
// onto trusted roots, so anything else is rejected outright.
func ValidateRelPath(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(value, "/") {
		return fmt.Errorf("path %q must be relative", value)
	}
	if strings.ContainsRune(value, '\x00') {
		return fmt.Errorf("path %q contains a NUL byte", value)
	}
	if cleaned := path.Clean(value); cleaned != value {
		return fmt.Errorf("path %q is not clean", value)
	}
	for _, segment := range strings.Split(value, "/") {
		switch segment {
		case "", ".", "..":
			return fmt.Errorf("path %q contains invalid component %q", value, segment)
		}
	}
	return nil
}
