// Package pipeline runs one scenario end to end: validate, materialize,
// execute, classify, and seal the evidence bundle. Every invocation writes
// a bundle, including rejections and internal failures; the one thing the
// pipeline never does is finish without evidence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vouchdev/vouch/internal/config"
	"github.com/vouchdev/vouch/internal/evidence"
	"github.com/vouchdev/vouch/internal/fixture"
	"github.com/vouchdev/vouch/internal/hashing"
	"github.com/vouchdev/vouch/internal/identity"
	"github.com/vouchdev/vouch/internal/outcome"
	"github.com/vouchdev/vouch/internal/sandbox"
	"github.com/vouchdev/vouch/internal/scenario"
	"github.com/vouchdev/vouch/internal/store"
	"github.com/vouchdev/vouch/internal/version"
)

// TokenGenerator names ephemeral workdirs. Production uses UUIDv7; tests
// inject a deterministic sequence.
type TokenGenerator interface {
	Generate() string
}

type uuidTokens struct{}

func (uuidTokens) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Options inject the pipeline's nondeterministic edges. Zero values select
// production behavior.
type Options struct {
	Clock  evidence.Clock
	Tokens TokenGenerator
	Runner sandbox.Runner
	Store  *store.Store
}

// Pipeline executes scenarios against one fixed target binary.
type Pipeline struct {
	cfg       *config.Config
	target    *identity.BinaryIdentity
	catalog   *fixture.Catalog
	validator *scenario.Validator
	runner    sandbox.Runner
	index     *store.Store
	clock     evidence.Clock
	tokens    TokenGenerator
}

// New builds a pipeline: loads the fixture catalog, compiles the scenario
// schema, and selects the sandbox runner from config.
func New(cfg *config.Config, target *identity.BinaryIdentity, opts Options) (*Pipeline, error) {
	catalog, err := fixture.LoadCatalog(cfg.FixturesRoot)
	if err != nil {
		return nil, fmt.Errorf("load fixture catalog: %w", err)
	}
	validator, err := scenario.NewValidator(cfg.Bounds, catalog, target)
	if err != nil {
		return nil, err
	}

	runner := opts.Runner
	if runner == nil {
		runner, err = sandbox.New(cfg.Sandbox)
		if err != nil {
			return nil, err
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = evidence.SystemClock()
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = uuidTokens{}
	}

	return &Pipeline{
		cfg:       cfg,
		target:    target,
		catalog:   catalog,
		validator: validator,
		runner:    runner,
		index:     opts.Store,
		clock:     clock,
		tokens:    tokens,
	}, nil
}

// Catalog exposes the loaded fixture catalog for listing commands.
func (p *Pipeline) Catalog() *fixture.Catalog { return p.catalog }

// RunInput is one invocation's input: the raw scenario document and the
// optional opaque producer transcript stored alongside it.
type RunInput struct {
	Raw        []byte
	LMPrompt   []byte
	LMResponse []byte
}

// RunReport summarizes one sealed bundle. InternalErr is set when the run
// broke before classification; Outcome is nil in exactly that case.
type RunReport struct {
	RunID       string
	BundleDir   string
	Outcome     *outcome.Outcome
	Reject      *scenario.RejectError
	InternalErr *evidence.ErrorRecord
}

// Failed reports whether the run broke internally.
func (r *RunReport) Failed() bool { return r.InternalErr != nil }

// Run executes one scenario document to a sealed evidence bundle. The
// returned error is reserved for failures so early that no bundle could be
// created; everything later is recorded inside the bundle and surfaced via
// the report.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*RunReport, error) {
	sc, rej := p.validator.Validate(in.Raw)
	if rej != nil {
		return p.runRejected(ctx, in, rej)
	}
	return p.runAccepted(ctx, in, sc)
}

// runRejected seals a bundle for a document that never reached execution.
func (p *Pipeline) runRejected(ctx context.Context, in RunInput, rej *scenario.RejectError) (*RunReport, error) {
	rawSHA := hashing.SHA256Hex(in.Raw)
	runID := p.rejectedRunID(in.Raw, rawSHA)

	bundle, err := evidence.CreateBundle(p.cfg.EvidenceRoot, runID)
	if err != nil {
		return nil, err
	}

	report := &RunReport{RunID: runID, BundleDir: bundle.Dir()}
	oc := rej.Outcome()
	report.Outcome = &oc
	report.Reject = rej

	meta := p.baseMeta()
	meta.Outcome = &oc
	meta.Scenario = &evidence.ScenarioMeta{ID: probeScenarioID(in.Raw), SHA256: rawSHA}
	meta.Binary = p.binaryMeta()

	p.writeCommonArtifacts(bundle, in, report)
	p.writeProblems(bundle, append([]string{rej.Error()}, rej.Details...), report)
	p.seal(bundle, meta, report)
	p.record(ctx, report, store.RunRecord{
		RunID:          runID,
		ScenarioID:     probeScenarioID(in.Raw),
		ScenarioSHA256: rawSHA,
		BinarySHA256:   p.target.SHA256,
		Outcome:        string(oc.Kind),
		CreatedAtMS:    meta.CreatedAtMS,
		BundleDir:      bundle.Dir(),
	})
	return report, nil
}

// runAccepted materializes the fixture, executes the process, and seals
// the full bundle.
func (p *Pipeline) runAccepted(ctx context.Context, in RunInput, sc *scenario.Scenario) (*RunReport, error) {
	runID := evidence.NewRunID(sc.ID, sc.SHA256, p.target.SHA256, p.clock)

	bundle, err := evidence.CreateBundle(p.cfg.EvidenceRoot, runID)
	if err != nil {
		return nil, err
	}

	report := &RunReport{RunID: runID, BundleDir: bundle.Dir()}

	meta := p.baseMeta()
	meta.Scenario = &evidence.ScenarioMeta{ID: sc.ID, Rationale: sc.Rationale, SHA256: sc.SHA256}
	meta.Binary = p.binaryMeta()

	p.writeCommonArtifacts(bundle, in, report)

	mat, err := fixture.Materialize(p.catalog.Dir(sc.Fixture.ID), p.tokens.Generate(), p.cfg.KeepWorkdir)
	if err != nil {
		var ierr *fixture.IntegrityError
		if errors.As(err, &ierr) {
			oc := outcome.Outcome{Kind: outcome.FixtureInvalid}
			report.Outcome = &oc
			meta.Outcome = &oc
			meta.Fixture = &evidence.FixtureMeta{ID: sc.Fixture.ID}
			p.writeProblems(bundle, ierr.Problems, report)
		} else {
			report.InternalErr = &evidence.ErrorRecord{Stage: "materialize", Message: err.Error()}
			meta.Error = report.InternalErr
		}
		p.seal(bundle, meta, report)
		p.recordScenario(ctx, report, sc, meta)
		return report, nil
	}
	defer mat.Close()

	meta.Fixture = &evidence.FixtureMeta{ID: sc.Fixture.ID, ManifestSHA256: mat.ManifestHash}
	meta.Sandbox = &evidence.SandboxMeta{
		Mode:   p.runner.Mode(),
		Env:    []string{sandbox.EnvLocale, sandbox.EnvTimezone, sandbox.EnvTerm, sandbox.EnvPath},
		Limits: sc.Limits,
	}

	res, err := p.runner.Run(ctx, sandbox.ExecSpec{
		BinaryPath:    p.target.ResolvedPath,
		Argv0:         sc.Binary.Path,
		Args:          sc.Args,
		Workdir:       mat.Root,
		Limits:        sc.Limits,
		CaptureStdout: sc.Artifacts.CaptureStdout,
		CaptureStderr: sc.Artifacts.CaptureStderr,
	})
	if err != nil {
		report.InternalErr = &evidence.ErrorRecord{Stage: "execute", Message: err.Error()}
		meta.Error = report.InternalErr
		p.seal(bundle, meta, report)
		p.recordScenario(ctx, report, sc, meta)
		return report, nil
	}

	oc := res.Outcome
	if !sc.Artifacts.CaptureExitCode {
		oc.ExitCode = nil
	}
	report.Outcome = &oc
	meta.Outcome = &oc
	meta.Result = &evidence.ResultMeta{
		WallTimeMS:      res.WallTime.Milliseconds(),
		CPUTimeMS:       res.CPUTime.Milliseconds(),
		MaxRSSKB:        res.MaxRSSKB,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
	}

	if sc.Artifacts.CaptureStdout {
		p.writeArtifact(bundle, evidence.FileStdout, res.Stdout, report)
	}
	if sc.Artifacts.CaptureStderr {
		p.writeArtifact(bundle, evidence.FileStderr, res.Stderr, report)
	}

	p.seal(bundle, meta, report)
	p.recordScenario(ctx, report, sc, meta)
	return report, nil
}

func (p *Pipeline) baseMeta() evidence.Meta {
	return evidence.Meta{
		CreatedAtMS: p.clock.NowMS(),
		Tool:        evidence.ToolMeta{Name: version.Name, Version: version.Version},
	}
}

// binaryMeta records the target's identity. The target was resolved and
// hashed before any document was seen, so every bundle carries it, rejected
// runs included.
func (p *Pipeline) binaryMeta() *evidence.BinaryMeta {
	return &evidence.BinaryMeta{
		InvokedPath:  p.target.InvokedPath,
		ResolvedPath: p.target.ResolvedPath,
		SHA256:       p.target.SHA256,
		Platform:     p.target.Platform,
	}
}

// rejectedRunID prefers the document's own id when one parsed, and falls
// back to the fixed invalid label otherwise.
func (p *Pipeline) rejectedRunID(raw []byte, rawSHA string) string {
	if id := probeScenarioID(raw); id != "" {
		return evidence.NewRunID(id, rawSHA, p.target.SHA256, p.clock)
	}
	return evidence.RejectedRunID(rawSHA, p.target.SHA256, p.clock)
}

// probeScenarioID pulls the id field out of an arbitrary document, if the
// bytes parse at all. Used only for labeling rejected bundles.
func probeScenarioID(raw []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.ID)
}

// writeCommonArtifacts stores the document bytes as received plus any
// opaque producer transcript.
func (p *Pipeline) writeCommonArtifacts(bundle *evidence.Bundle, in RunInput, report *RunReport) {
	p.writeArtifact(bundle, evidence.FileScenario, in.Raw, report)
	if in.LMPrompt != nil {
		p.writeArtifact(bundle, evidence.FileLMPrompt, in.LMPrompt, report)
	}
	if in.LMResponse != nil {
		p.writeArtifact(bundle, evidence.FileLMReply, in.LMResponse, report)
	}
}

// writeProblems stores the human-readable reasons behind a rejection or
// fixture failure as their own artifact.
func (p *Pipeline) writeProblems(bundle *evidence.Bundle, problems []string, report *RunReport) {
	if len(problems) == 0 {
		return
	}
	p.writeArtifact(bundle, evidence.FileProblems, []byte(strings.Join(problems, "\n")+"\n"), report)
}

// writeArtifact records a bundle write failure as an internal error rather
// than aborting; the seal still happens so the bundle stays inspectable.
func (p *Pipeline) writeArtifact(bundle *evidence.Bundle, name string, data []byte, report *RunReport) {
	if report.InternalErr != nil {
		return
	}
	if err := bundle.WriteArtifact(name, data); err != nil {
		report.InternalErr = &evidence.ErrorRecord{Stage: "bundle", Message: err.Error()}
	}
}

func (p *Pipeline) seal(bundle *evidence.Bundle, meta evidence.Meta, report *RunReport) {
	if report.InternalErr != nil && meta.Error == nil {
		meta.Error = report.InternalErr
		meta.Outcome = nil
		report.Outcome = nil
	}
	if err := bundle.Seal(meta); err != nil && report.InternalErr == nil {
		report.InternalErr = &evidence.ErrorRecord{Stage: "seal", Message: err.Error()}
	}
}

// recordScenario indexes an accepted scenario's run.
func (p *Pipeline) recordScenario(ctx context.Context, report *RunReport, sc *scenario.Scenario, meta evidence.Meta) {
	rec := store.RunRecord{
		RunID:          report.RunID,
		ScenarioID:     sc.ID,
		ScenarioSHA256: sc.SHA256,
		BinarySHA256:   p.target.SHA256,
		FixtureID:      sc.Fixture.ID,
		CreatedAtMS:    meta.CreatedAtMS,
		BundleDir:      report.BundleDir,
	}
	if report.Outcome != nil {
		rec.Outcome = string(report.Outcome.Kind)
		rec.ExitCode = report.Outcome.ExitCode
	} else {
		rec.Outcome = "error"
	}
	p.record(ctx, report, rec)
}

// record writes the index row. Index trouble is an internal error but the
// sealed bundle remains authoritative.
func (p *Pipeline) record(ctx context.Context, report *RunReport, rec store.RunRecord) {
	if p.index == nil {
		return
	}
	if err := p.index.RecordRun(ctx, rec); err != nil && report.InternalErr == nil {
		report.InternalErr = &evidence.ErrorRecord{Stage: "index", Message: err.Error()}
	}
}
