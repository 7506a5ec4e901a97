// Package identity resolves and fingerprints the binary under test.
//
// Identity is recomputed fresh for every run and never cached: the hash must
// describe the bytes that will actually execute, and the file may change
// between invocations.
package identity

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/vouchdev/vouch/internal/hashing"
)

// Platform records where the identity was computed.
type Platform struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// BinaryIdentity is the resolved, hashed identity of the target binary.
// InvokedPath preserves what the caller supplied (argv[0] semantics);
// ResolvedPath has every symlink resolved and is the path that is hashed
// and compared against scenario declarations.
type BinaryIdentity struct {
	InvokedPath  string   `json:"invoked_path"`
	ResolvedPath string   `json:"resolved_path"`
	SHA256       string   `json:"sha256"`
	Platform     Platform `json:"platform"`
}

// Errors surfaced during resolution. Callers map these onto the
// binary_mismatch outcome.
var (
	ErrNotFound      = errors.New("binary not found")
	ErrNotRegular    = errors.New("binary is not a regular file")
	ErrNotExecutable = errors.New("binary is not executable")
)

// Resolve computes the identity for a binary path or bare name.
//
// Bare names (no path separator) are searched on PATH. Paths are made
// absolute against the working directory, then fully symlink-resolved so
// hashing is stable regardless of how the binary was addressed.
func Resolve(value string) (*BinaryIdentity, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty path", ErrNotFound)
	}

	invoked := value
	if !strings.ContainsRune(value, os.PathSeparator) {
		found, err := exec.LookPath(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %q not on PATH", ErrNotFound, value)
		}
		invoked = found
	}

	abs, err := filepath.Abs(invoked)
	if err != nil {
		return nil, fmt.Errorf("absolutize %s: %w", invoked, err)
	}

	resolved, err := ResolvePath(abs)
	if err != nil {
		return nil, err
	}

	sum, err := hashing.SHA256File(resolved)
	if err != nil {
		return nil, fmt.Errorf("hash binary: %w", err)
	}

	return &BinaryIdentity{
		InvokedPath:  abs,
		ResolvedPath: resolved,
		SHA256:       sum,
		Platform:     Platform{OS: runtime.GOOS, Arch: runtime.GOARCH},
	}, nil
}

// ResolvePath resolves symlinks and verifies the target is an executable
// regular file. It performs no hashing.
func ResolvePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, resolved)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotRegular, resolved)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotExecutable, resolved)
	}
	return resolved, nil
}

// ResolveDeclared resolves a scenario's declared binary path the same way
// the target itself is resolved: absolute first, then symlinks, with the
// executable checks applied. Identity comparison is by resolved path, so a
// declared path matches the target only when it names the same file, not
// merely an equal copy.
func ResolveDeclared(declaredPath string) (string, error) {
	abs, err := filepath.Abs(declaredPath)
	if err != nil {
		return "", fmt.Errorf("absolutize %s: %w", declaredPath, err)
	}
	return ResolvePath(abs)
}
