package scenario

import (
	"fmt"
	"strings"

	"github.com/vouchdev/vouch/internal/outcome"
)

// Rejection reason codes. R1xx: shape (parse/schema), R2xx: policy bounds,
// R3xx: binary identity. Codes are stable: re-validating identical bytes
// yields the identical code.
const (
	ErrParse         = "R100" // document is not valid JSON
	ErrSchema        = "R101" // schema violation (type, missing or unknown field)
	ErrDocTooLarge   = "R201" // raw document exceeds configured size cap
	ErrTooManyArgs   = "R210" // args exceeds configured count
	ErrArgTooLong    = "R211" // an arg exceeds configured length
	ErrArgNULByte    = "R212" // an arg contains a NUL byte
	ErrRationaleLong = "R213" // rationale exceeds configured length
	ErrLimitBounds   = "R220" // a limit is outside its configured bound
	ErrFixtureID     = "R230" // fixture id is not a clean relative path
	ErrFixtureUnknown = "R231" // fixture id absent from the catalog
	ErrBinaryResolve = "R300" // declared binary path does not resolve to an executable
	ErrBinaryMismatch = "R301" // declared path resolves to a different file than the target
)

// RejectError is the single failure type the Validator produces. It carries
// a stable code, the offending field path, and optional detail lines.
type RejectError struct {
	Code    string
	Field   string
	Message string
	Details []string
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Outcome maps the rejection onto the run outcome: identity failures are
// binary_mismatch, everything else is schema_invalid.
func (e *RejectError) Outcome() outcome.Outcome {
	if strings.HasPrefix(e.Code, "R3") {
		return outcome.Outcome{Kind: outcome.BinaryMismatch}
	}
	return outcome.Outcome{Kind: outcome.SchemaInvalid}
}

func reject(code, field, format string, args ...any) *RejectError {
	return &RejectError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}
