// Package evidence assembles the per-run evidence bundle: a run-id named
// directory holding the scenario bytes as received, captured streams, and a
// metadata record that hash-addresses all of it.
package evidence

import (
	"fmt"
	"strings"
	"time"

	"github.com/vouchdev/vouch/internal/hashing"
)

// Clock yields wall time in epoch milliseconds. Injected so tests mint
// stable run ids.
type Clock interface {
	NowMS() int64
}

type systemClock struct{}

func (systemClock) NowMS() int64 { return time.Now().UnixMilli() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }

// Label limits. Labels exist for human directory listings; identity lives
// in the hash and timestamp components.
const (
	maxLabelLen   = 32
	fallbackLabel = "scenario"

	// invalidLabel marks bundles for documents rejected before a scenario
	// id existed.
	invalidLabel = "invalid"
)

// SanitizeLabel maps an arbitrary scenario id to a filesystem-safe label:
// lowercased, runs of anything outside [a-z0-9_-] collapsed to one
// underscore, trimmed to 32 bytes. Empty results fall back to "scenario".
func SanitizeLabel(id string) string {
	var b strings.Builder
	pendingGap := false
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			if pendingGap && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingGap = false
			b.WriteRune(r)
		default:
			pendingGap = true
		}
		if b.Len() >= maxLabelLen {
			break
		}
	}
	label := b.String()
	if len(label) > maxLabelLen {
		label = label[:maxLabelLen]
	}
	label = strings.Trim(label, "_")
	if label == "" {
		return fallbackLabel
	}
	return label
}

// NewRunID mints a run identifier: <label>-<hash12>-<epoch_ms>. The hash
// component binds the exact scenario bytes to the exact binary, so the same
// claim against the same build always shares a hash prefix while the
// timestamp keeps ids unique across repeats.
func NewRunID(scenarioID, scenarioSHA256, binarySHA256 string, clock Clock) string {
	hash := hashing.RunPairHash(scenarioSHA256, binarySHA256)
	return fmt.Sprintf("%s-%s-%d", SanitizeLabel(scenarioID), hash[:12], clock.NowMS())
}

// RejectedRunID mints a run identifier for a document rejected before a
// scenario id was available. The raw document bytes still participate in
// the hash, so identical rejected inputs correlate.
func RejectedRunID(rawSHA256, binarySHA256 string, clock Clock) string {
	hash := hashing.RunPairHash(rawSHA256, binarySHA256)
	return fmt.Sprintf("%s-%s-%d", invalidLabel, hash[:12], clock.NowMS())
}
