package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vouchdev/vouch/internal/fixture"
	"github.com/vouchdev/vouch/internal/identity"
	"github.com/vouchdev/vouch/internal/scenario"
)

// ValidationResult is the validate command's output payload.
type ValidationResult struct {
	Valid  bool          `json:"valid"`
	Reject *rejectReport `json:"reject,omitempty"`
}

func (r ValidationResult) String() string {
	if r.Valid {
		return "valid"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid: [%s] %s", r.Reject.Code, r.Reject.Message)
	for _, detail := range r.Reject.Details {
		fmt.Fprintf(&b, "\n  %s", detail)
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var binary string

	cmd := &cobra.Command{
		Use:   "validate <scenario.json>",
		Short: "Validate a scenario document without executing it",
		Long: `Validate a scenario document against the schema, the policy bounds,
the fixture catalog, and the target binary's identity. Nothing is executed
and no evidence is written.

Pass "-" to read the scenario from stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, binary, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&binary, "binary", "", "path to the target binary (required)")
	_ = cmd.MarkFlagRequired("binary")

	return cmd
}

func runValidate(opts *RootOptions, binary, scenarioPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	raw, err := readInput(scenarioPath, cmd.InOrStdin())
	if err != nil {
		formatter.Error(ErrCodeReadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "read scenario", err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}

	catalog, err := fixture.LoadCatalog(cfg.FixturesRoot)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load fixture catalog", err)
	}

	target, err := identity.Resolve(binary)
	if err != nil {
		formatter.Error(ErrCodeBinary, err.Error(), nil)
		return WrapExitError(ExitCommandError, "resolve binary", err)
	}

	validator, err := scenario.NewValidator(cfg.Bounds, catalog, target)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "build validator", err)
	}

	sc, rej := validator.Validate(raw)
	if rej != nil {
		result := ValidationResult{Valid: false, Reject: newRejectReport(rej)}
		if err := formatter.Success(result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "scenario invalid")
	}

	formatter.VerboseLog("scenario %s accepted, sha256 %s", sc.ID, sc.SHA256)
	return formatter.Success(ValidationResult{Valid: true})
}
