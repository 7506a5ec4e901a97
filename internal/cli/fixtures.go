package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vouchdev/vouch/internal/fixture"
)

// NewFixturesCommand creates the fixtures command group.
func NewFixturesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Inspect the fixture store",
	}
	cmd.AddCommand(newFixturesListCommand(rootOpts))
	cmd.AddCommand(newFixturesVerifyCommand(rootOpts))
	return cmd
}

// fixtureListing is the list subcommand's output payload.
type fixtureListing struct {
	Fixtures []fixtureInfo `json:"fixtures"`
}

type fixtureInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

func (l fixtureListing) String() string {
	if len(l.Fixtures) == 0 {
		return "no fixtures in catalog"
	}
	var b strings.Builder
	for i, f := range l.Fixtures {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-24s %s", f.ID, f.Description)
	}
	return b.String()
}

func newFixturesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List catalogued fixtures",
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
			catalog, err := fixture.LoadCatalog(cfg.FixturesRoot)
			if err != nil {
				formatter.Error(ErrCodeConfig, err.Error(), nil)
				return WrapExitError(ExitCommandError, "load fixture catalog", err)
			}

			listing := fixtureListing{Fixtures: []fixtureInfo{}}
			for _, entry := range catalog.Entries() {
				listing.Fixtures = append(listing.Fixtures, fixtureInfo{
					ID:          entry.ID,
					Description: entry.Description,
				})
			}
			return formatter.Success(listing)
		},
	}
}

// verifyResult is the verify subcommand's output payload.
type verifyResult struct {
	ID             string   `json:"id"`
	OK             bool     `json:"ok"`
	ManifestSHA256 string   `json:"manifest_sha256,omitempty"`
	Problems       []string `json:"problems,omitempty"`
}

func (r verifyResult) String() string {
	if r.OK {
		return fmt.Sprintf("%s: ok (manifest %s)", r.ID, r.ManifestSHA256)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: integrity check failed", r.ID)
	for _, p := range r.Problems {
		fmt.Fprintf(&b, "\n  %s", p)
	}
	return b.String()
}

func newFixturesVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "verify <fixture-id>",
		Short:         "Verify a fixture's tree against its manifest",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			id := args[0]

			cfg, err := loadConfig(rootOpts)
			if err != nil {
				formatter.Error(ErrCodeConfig, err.Error(), nil)
				return err
			}
			catalog, err := fixture.LoadCatalog(cfg.FixturesRoot)
			if err != nil {
				formatter.Error(ErrCodeConfig, err.Error(), nil)
				return WrapExitError(ExitCommandError, "load fixture catalog", err)
			}
			if !catalog.Has(id) {
				formatter.Error(ErrCodeNotFound, fmt.Sprintf("fixture %q is not in the catalog", id), nil)
				return NewExitError(ExitCommandError, "fixture not found")
			}

			hash, err := fixture.Verify(catalog.Dir(id))
			if err != nil {
				var ierr *fixture.IntegrityError
				if errors.As(err, &ierr) {
					result := verifyResult{ID: id, OK: false, Problems: ierr.Problems}
					if err := formatter.Success(result); err != nil {
						return err
					}
					return NewExitError(ExitFailure, "fixture integrity check failed")
				}
				formatter.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitFailure, "verify fixture", err)
			}

			return formatter.Success(verifyResult{ID: id, OK: true, ManifestSHA256: hash})
		},
	}
}
