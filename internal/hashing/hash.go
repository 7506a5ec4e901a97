// Package hashing provides SHA-256 helpers for evidence artifacts and
// content-addressed run identity.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRun      = "vouch/run/v1"
	DomainManifest = "vouch/manifest/v1"
)

// SHA256Hex hashes raw bytes and returns a lowercase hex string.
// Hashes are always computed over the bytes actually observed, never over a
// reformatted representation.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256File hashes a file's contents by streaming and returns a lowercase
// hex string.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + part1 + 0x00 + part2 + ...)
// The null separators prevent boundary ambiguity between parts.
func WithDomain(domain string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, part := range parts {
		h.Write([]byte{0x00})
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RunPairHash computes the content-addressed hash binding a scenario document
// to a binary identity. The first 12 hex characters form the hash12 component
// of a run identifier.
func RunPairHash(scenarioSHA256, binarySHA256 string) string {
	return WithDomain(DomainRun, []byte(scenarioSHA256), []byte(binarySHA256))
}
