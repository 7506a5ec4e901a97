package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vouchdev/vouch/internal/evidence"
	"github.com/vouchdev/vouch/internal/identity"
	"github.com/vouchdev/vouch/internal/outcome"
	"github.com/vouchdev/vouch/internal/pipeline"
	"github.com/vouchdev/vouch/internal/scenario"
	"github.com/vouchdev/vouch/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Binary      string
	LMPrompt    string
	LMResponse  string
	KeepWorkdir bool

	// Pipeline allows tests to inject a pre-built pipeline.
	Pipeline *pipeline.Pipeline
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.json>",
		Short: "Execute one scenario and seal an evidence bundle",
		Long: `Execute one scenario document against the target binary.

The document is validated, its fixture is materialized into an ephemeral
working directory, the binary runs under the configured sandbox and the
scenario's resource limits, and everything observed is sealed into an
evidence bundle. A bundle is written for every invocation, including
rejected documents.

Pass "-" to read the scenario from stdin.

Example:
  vouch run --binary ./build/mytool scenario.json
  cat scenario.json | vouch run --binary /usr/bin/mytool -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Binary, "binary", "", "path to the target binary (required)")
	cmd.Flags().StringVar(&opts.LMPrompt, "lm-prompt", "", "file holding the producer prompt, stored opaquely")
	cmd.Flags().StringVar(&opts.LMResponse, "lm-response", "", "file holding the producer response, stored opaquely")
	cmd.Flags().BoolVar(&opts.KeepWorkdir, "keep-workdir", false, "keep the materialized working directory after the run")
	_ = cmd.MarkFlagRequired("binary")

	return cmd
}

// runReport is the run command's output payload.
type runReport struct {
	RunID     string                `json:"run_id"`
	BundleDir string                `json:"bundle_dir"`
	Outcome   *outcome.Outcome      `json:"outcome,omitempty"`
	Reject    *rejectReport         `json:"reject,omitempty"`
	Error     *evidence.ErrorRecord `json:"error,omitempty"`
}

type rejectReport struct {
	Code    string   `json:"code"`
	Field   string   `json:"field,omitempty"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (r runReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run:     %s\n", r.RunID)
	fmt.Fprintf(&b, "bundle:  %s\n", r.BundleDir)
	switch {
	case r.Error != nil:
		fmt.Fprintf(&b, "error:   [%s] %s", r.Error.Stage, r.Error.Message)
	case r.Outcome != nil:
		fmt.Fprintf(&b, "outcome: %s", r.Outcome)
		if r.Reject != nil {
			fmt.Fprintf(&b, "\nreason:  [%s] %s", r.Reject.Code, r.Reject.Message)
		}
	}
	return b.String()
}

func runScenario(opts *RunOptions, scenarioPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	raw, err := readInput(scenarioPath, cmd.InOrStdin())
	if err != nil {
		formatter.Error(ErrCodeReadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "read scenario", err)
	}

	input := pipeline.RunInput{Raw: raw}
	if opts.LMPrompt != "" {
		if input.LMPrompt, err = os.ReadFile(opts.LMPrompt); err != nil {
			formatter.Error(ErrCodeReadInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "read lm prompt", err)
		}
	}
	if opts.LMResponse != "" {
		if input.LMResponse, err = os.ReadFile(opts.LMResponse); err != nil {
			formatter.Error(ErrCodeReadInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "read lm response", err)
		}
	}

	pl := opts.Pipeline
	var db *store.Store
	if pl == nil {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			formatter.Error(ErrCodeConfig, err.Error(), nil)
			return err
		}
		cfg.KeepWorkdir = cfg.KeepWorkdir || opts.KeepWorkdir

		target, err := identity.Resolve(opts.Binary)
		if err != nil {
			formatter.Error(ErrCodeBinary, err.Error(), nil)
			return WrapExitError(ExitCommandError, "resolve binary", err)
		}
		slog.Debug("target resolved", "path", target.ResolvedPath, "sha256", target.SHA256)

		db, err = store.Open(cfg.IndexPath)
		if err != nil {
			formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open run index", err)
		}
		defer db.Close()

		pl, err = pipeline.New(cfg, target, pipeline.Options{Store: db})
		if err != nil {
			formatter.Error(ErrCodePipeline, err.Error(), nil)
			return WrapExitError(ExitCommandError, "initialize pipeline", err)
		}
	}

	report, err := pl.Run(cmd.Context(), input)
	if err != nil {
		formatter.Error(ErrCodePipeline, err.Error(), nil)
		return WrapExitError(ExitFailure, "run scenario", err)
	}
	slog.Debug("bundle sealed", "run_id", report.RunID, "dir", report.BundleDir)

	out := runReport{
		RunID:     report.RunID,
		BundleDir: report.BundleDir,
		Outcome:   report.Outcome,
		Error:     report.InternalErr,
	}
	if report.Reject != nil {
		out.Reject = newRejectReport(report.Reject)
	}
	if err := formatter.Success(out); err != nil {
		return err
	}

	if report.Failed() {
		return NewExitError(ExitFailure, "run broke before classification")
	}
	return nil
}

func newRejectReport(rej *scenario.RejectError) *rejectReport {
	return &rejectReport{
		Code:    rej.Code,
		Field:   rej.Field,
		Message: rej.Message,
		Details: rej.Details,
	}
}

// readInput reads a file argument, with "-" meaning stdin.
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
