package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vouchdev/vouch/internal/evidence"
	"github.com/vouchdev/vouch/internal/store"
)

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run index and sealed bundles",
	}
	cmd.AddCommand(newRunsListCommand(rootOpts))
	cmd.AddCommand(newRunsShowCommand(rootOpts))
	return cmd
}

// runListing is the list subcommand's output payload.
type runListing struct {
	Runs []runRow `json:"runs"`
}

type runRow struct {
	RunID       string `json:"run_id"`
	ScenarioID  string `json:"scenario_id"`
	Outcome     string `json:"outcome"`
	ExitCode    *int   `json:"exit_code,omitempty"`
	CreatedAtMS int64  `json:"created_at_ms"`
	BundleDir   string `json:"bundle_dir"`
}

func (l runListing) String() string {
	if len(l.Runs) == 0 {
		return "no runs recorded"
	}
	var b strings.Builder
	for i, r := range l.Runs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-48s %-16s %s", r.RunID, r.Outcome, r.BundleDir)
	}
	return b.String()
}

func newRunsListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		scenarioID  string
		outcomeKind string
		limit       int
	)

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recorded runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			cfg, err := loadConfig(rootOpts)
			if err != nil {
				formatter.Error(ErrCodeConfig, err.Error(), nil)
				return err
			}
			db, err := store.Open(cfg.IndexPath)
			if err != nil {
				formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "open run index", err)
			}
			defer db.Close()

			records, err := db.ListRuns(cmd.Context(), store.ListOptions{
				ScenarioID: scenarioID,
				Outcome:    outcomeKind,
				Limit:      limit,
			})
			if err != nil {
				formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitFailure, "list runs", err)
			}

			listing := runListing{Runs: []runRow{}}
			for _, rec := range records {
				listing.Runs = append(listing.Runs, runRow{
					RunID:       rec.RunID,
					ScenarioID:  rec.ScenarioID,
					Outcome:     rec.Outcome,
					ExitCode:    rec.ExitCode,
					CreatedAtMS: rec.CreatedAtMS,
					BundleDir:   rec.BundleDir,
				})
			}
			return formatter.Success(listing)
		},
	}

	cmd.Flags().StringVar(&scenarioID, "scenario", "", "filter by scenario id")
	cmd.Flags().StringVar(&outcomeKind, "outcome", "", "filter by outcome kind")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to return (0 = all)")

	return cmd
}

// runDetail is the show subcommand's output payload. Verified reports
// whether every artifact still matches its recorded hash.
type runDetail struct {
	Record   runRow         `json:"record"`
	Meta     *evidence.Meta `json:"meta"`
	Verified bool           `json:"verified"`
	Problems []string       `json:"problems,omitempty"`
}

func (d runDetail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run:      %s\n", d.Record.RunID)
	fmt.Fprintf(&b, "scenario: %s\n", d.Record.ScenarioID)
	fmt.Fprintf(&b, "outcome:  %s\n", d.Record.Outcome)
	fmt.Fprintf(&b, "bundle:   %s\n", d.Record.BundleDir)
	if d.Verified {
		b.WriteString("verified: yes")
	} else {
		b.WriteString("verified: NO")
		for _, p := range d.Problems {
			fmt.Fprintf(&b, "\n  %s", p)
		}
	}
	return b.String()
}

func newRunsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one run and re-verify its bundle",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			cfg, err := loadConfig(rootOpts)
			if err != nil {
				formatter.Error(ErrCodeConfig, err.Error(), nil)
				return err
			}
			db, err := store.Open(cfg.IndexPath)
			if err != nil {
				formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "open run index", err)
			}
			defer db.Close()

			rec, err := db.GetRun(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					formatter.Error(ErrCodeNotFound, err.Error(), nil)
					return NewExitError(ExitCommandError, "run not found")
				}
				formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitFailure, "load run", err)
			}

			meta, err := evidence.ReadMeta(rec.BundleDir)
			if err != nil {
				formatter.Error(ErrCodeIntegrity, err.Error(), nil)
				return WrapExitError(ExitFailure, "read bundle metadata", err)
			}
			problems, err := evidence.VerifyBundle(rec.BundleDir)
			if err != nil {
				formatter.Error(ErrCodeIntegrity, err.Error(), nil)
				return WrapExitError(ExitFailure, "verify bundle", err)
			}

			detail := runDetail{
				Record: runRow{
					RunID:       rec.RunID,
					ScenarioID:  rec.ScenarioID,
					Outcome:     rec.Outcome,
					ExitCode:    rec.ExitCode,
					CreatedAtMS: rec.CreatedAtMS,
					BundleDir:   rec.BundleDir,
				},
				Meta:     meta,
				Verified: len(problems) == 0,
				Problems: problems,
			}
			if err := formatter.Success(detail); err != nil {
				return err
			}
			if !detail.Verified {
				return NewExitError(ExitFailure, "bundle failed verification")
			}
			return nil
		},
	}
}
