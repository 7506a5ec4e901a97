package scenario

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/vouchdev/vouch/internal/config"
	"github.com/vouchdev/vouch/internal/fixture"
	"github.com/vouchdev/vouch/internal/hashing"
	"github.com/vouchdev/vouch/internal/identity"
)

//go:embed schema.cue
var schemaSource string

// Catalog is the read-only fixture membership check the Validator consults.
// Contents are not interpreted beyond id membership.
type Catalog interface {
	Has(id string) bool
}

// Validator promotes raw untrusted bytes into a Scenario, or rejects them.
// It holds no mutable state and performs no filesystem writes; the only
// filesystem access is the read-only binary resolution of the identity
// check.
type Validator struct {
	cctx    *cue.Context
	schema  cue.Value
	bounds  config.Bounds
	catalog Catalog
	target  *identity.BinaryIdentity
}

// NewValidator compiles the embedded schema and binds the validator to a
// fixture catalog and the target binary identity for this run.
func NewValidator(bounds config.Bounds, catalog Catalog, target *identity.BinaryIdentity) (*Validator, error) {
	cctx := cuecontext.New()
	compiled := cctx.CompileString(schemaSource)
	if err := compiled.Err(); err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}
	schema := compiled.LookupPath(cue.ParsePath("#Scenario"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("lookup #Scenario: %w", err)
	}
	return &Validator{
		cctx:    cctx,
		schema:  schema,
		bounds:  bounds,
		catalog: catalog,
		target:  target,
	}, nil
}

// Validate runs every check in a fixed order and returns either a fully
// valid Scenario or the first rejection. The order is deterministic so the
// same bytes always produce the same decision and code.
func (v *Validator) Validate(raw []byte) (*Scenario, *RejectError) {
	if len(raw) > v.bounds.MaxDocumentBytes {
		return nil, reject(ErrDocTooLarge, "",
			"document is %d bytes, cap is %d", len(raw), v.bounds.MaxDocumentBytes)
	}

	if rej := v.checkShape(raw); rej != nil {
		return nil, rej
	}

	// Shape is known good; decoding cannot fail structurally.
	var doc Scenario
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, reject(ErrParse, "", "decode document: %v", err)
	}

	if rej := v.checkPolicy(&doc); rej != nil {
		return nil, rej
	}
	if rej := v.checkIdentity(&doc); rej != nil {
		return nil, rej
	}

	doc.Raw = append([]byte(nil), raw...)
	doc.SHA256 = hashing.SHA256Hex(raw)
	return &doc, nil
}

// checkShape validates the document against the embedded CUE schema:
// JSON well-formedness, field types, required fields, and closedness
// (unknown fields are schema violations, not warnings).
func (v *Validator) checkShape(raw []byte) *RejectError {
	expr, err := cuejson.Extract("scenario.json", raw)
	if err != nil {
		return reject(ErrParse, "", "document is not valid JSON: %v", err)
	}

	data := v.cctx.BuildExpr(expr)
	if err := data.Err(); err != nil {
		return reject(ErrParse, "", "build document value: %v", err)
	}

	unified := v.schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		rej := reject(ErrSchema, "", "document violates scenario schema")
		for _, cerr := range cueerrors.Errors(err) {
			rej.Details = append(rej.Details, cerr.Error())
		}
		return rej
	}
	return nil
}

// checkPolicy applies the configured bounds to a structurally valid
// document.
func (v *Validator) checkPolicy(doc *Scenario) *RejectError {
	if len(doc.Args) > v.bounds.MaxArgs {
		return reject(ErrTooManyArgs, "args",
			"%d args exceed cap of %d", len(doc.Args), v.bounds.MaxArgs)
	}
	for i, arg := range doc.Args {
		if len(arg) > v.bounds.MaxArgLength {
			return reject(ErrArgTooLong, fmt.Sprintf("args[%d]", i),
				"arg is %d bytes, cap is %d", len(arg), v.bounds.MaxArgLength)
		}
		if strings.ContainsRune(arg, '\x00') {
			return reject(ErrArgNULByte, fmt.Sprintf("args[%d]", i),
				"arg contains a NUL byte")
		}
	}
	if len(doc.Rationale) > v.bounds.MaxRationaleLength {
		return reject(ErrRationaleLong, "rationale",
			"rationale is %d bytes, cap is %d", len(doc.Rationale), v.bounds.MaxRationaleLength)
	}

	for _, lim := range []struct {
		field string
		value int64
		bound config.Range
	}{
		{"limits.wall_time_ms", doc.Limits.WallTimeMS, v.bounds.WallTimeMS},
		{"limits.cpu_time_ms", doc.Limits.CPUTimeMS, v.bounds.CPUTimeMS},
		{"limits.memory_kb", doc.Limits.MemoryKB, v.bounds.MemoryKB},
		{"limits.file_size_kb", doc.Limits.FileSizeKB, v.bounds.FileSizeKB},
	} {
		if !lim.bound.Contains(lim.value) {
			return reject(ErrLimitBounds, lim.field,
				"%d outside bound [%d, %d]", lim.value, lim.bound.Min, lim.bound.Max)
		}
	}

	if err := fixture.ValidateRelPath(doc.Fixture.ID); err != nil {
		return reject(ErrFixtureID, "fixture.id", "%v", err)
	}
	if !v.catalog.Has(doc.Fixture.ID) {
		return reject(ErrFixtureUnknown, "fixture.id",
			"fixture %q is not in the catalog", doc.Fixture.ID)
	}
	return nil
}

// checkIdentity verifies the declared binary path names the same executable
// as the run's target. Resolution failures and mismatches both fail closed;
// no execution happens after either.
func (v *Validator) checkIdentity(doc *Scenario) *RejectError {
	resolved, err := identity.ResolveDeclared(doc.Binary.Path)
	if err != nil {
		return reject(ErrBinaryResolve, "binary.path", "%v", err)
	}
	if resolved != v.target.ResolvedPath {
		return reject(ErrBinaryMismatch, "binary.path",
			"%q resolves to %q, target is %q", doc.Binary.Path, resolved, v.target.ResolvedPath)
	}
	return nil
}
