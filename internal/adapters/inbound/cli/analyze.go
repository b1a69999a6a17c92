package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/adapters/outbound/diffparse"
	"github.com/tollgate/tollgate/internal/adapters/outbound/tui"
	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
	"github.com/tollgate/tollgate/internal/domain/decision"
	"github.com/tollgate/tollgate/internal/domain/scoring"
)

func newAnalyzeCmd(flags *rootFlags) *cobra.Command {
	var (
		diffPath    string
		change      domain.VersionChange
		advisory    bool
		profileName string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score a local diff or patch series without recording anything",
		Long: "Run the analyzer, evaluator and decision engine over a unified diff or git format-patch file. " +
			"Nothing is stored and no notification is sent. Use - to read the diff from stdin.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			profiles, err := domain.NewProfileSet(cfg.Profiles)
			if err != nil {
				return err
			}
			profile, ok := profiles.Resolve(profileName)
			if !ok {
				return fmt.Errorf("unknown profile %q (known: %s)", profileName, strings.Join(profiles.Names(), ", "))
			}

			in := cmd.InOrStdin()
			if diffPath != "-" {
				f, err := os.Open(diffPath)
				if err != nil {
					return fmt.Errorf("opening diff: %w", err)
				}
				defer f.Close()
				in = f
			}
			diff, err := diffparse.Parse(in)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", diffPath, err)
			}

			change.Kind = domain.ChangeRelease
			if advisory {
				change.Kind = domain.ChangeAdvisory
			}
			change.Notes = diff.Notes
			assessed, err := application.AssessChange(change, diff, profile, scoring.NewEvaluator(), decision.PolicyFromConfig(cfg.Policy))
			if err != nil {
				return err
			}

			if jsonOutput {
				return renderJSON(cmd, assessed)
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderAssessment(change, assessed))
			return nil
		},
	}

	cmd.Flags().StringVar(&diffPath, "diff", "", "Diff or format-patch file (- for stdin)")
	cmd.Flags().StringVar(&change.FromVersion, "from", "", "Currently adopted version")
	cmd.Flags().StringVar(&change.ToVersion, "to", "", "Candidate version")
	cmd.Flags().StringVar(&change.ComponentID, "component", "", "Component the diff belongs to")
	cmd.Flags().BoolVar(&advisory, "advisory", false, "Treat the change as a security advisory fix")
	cmd.Flags().StringVar(&profileName, "profile", "", "Evaluation profile (defaults to default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the assessment as JSON")
	_ = cmd.MarkFlagRequired("diff")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}
