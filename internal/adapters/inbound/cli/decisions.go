package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/adapters/outbound/tui"
	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
)

func newPendingCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List decisions awaiting resolution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				pending, err := a.lifecycle.ListPending(cmd.Context())
				if err != nil {
					return fmt.Errorf("listing pending decisions: %w", err)
				}
				if jsonOutput {
					if pending == nil {
						pending = []domain.Decision{}
					}
					return renderJSON(cmd, pending)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderPending(pending, time.Now()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output decisions as JSON")

	return cmd
}

func newInspectCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect <decision-id>",
		Short: "Show a decision with its risk assessment and scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				in, err := a.lifecycle.Inspect(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return renderJSON(cmd, in)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderInspection(in, time.Now()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the inspection as JSON")

	return cmd
}

func newResolveCmd(flags *rootFlags) *cobra.Command {
	var (
		req         application.ResolveRequest
		interactive bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <decision-id>",
		Short: "Accept, reject or defer a pending decision",
		Long: "Resolve a pending decision. Accepting starts the deployment pipeline; deferring schedules a " +
			"re-evaluation. Every resolution records a --rationale.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.DecisionID = args[0]
			if req.Resolver == "" {
				req.Resolver = defaultResolver()
			}
			return withApp(flags, func(a *app) error {
				if interactive {
					in, err := a.lifecycle.Inspect(cmd.Context(), req.DecisionID)
					if err != nil {
						return err
					}
					fmt.Fprint(cmd.OutOrStdout(), tui.RenderInspection(in, time.Now()))
					if err := resolveForm(&req).Run(); err != nil {
						return fmt.Errorf("resolve form: %w", err)
					}
				}
				if req.Action == "" {
					return errors.New("--action is required (accept, reject, defer)")
				}

				res, err := a.lifecycle.Resolve(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return renderJSON(cmd, res)
				}
				printResolution(cmd, res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Action, "action", "", "Resolution: accept, reject or defer")
	cmd.Flags().StringVar(&req.Rationale, "rationale", "", "Why this resolution was chosen")
	cmd.Flags().StringVar(&req.Resolver, "resolver", "", "Who is resolving (defaults to $USER)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Review the decision and resolve it in a form")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")

	return cmd
}

// resolveForm fills the parts of req the flags left empty.
func resolveForm(req *application.ResolveRequest) *huh.Form {
	if req.Action == "" {
		req.Action = string(domain.ActionAccept)
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Action").
				Description("Accept starts the pipeline, defer schedules a re-evaluation").
				Options(huh.NewOptions(string(domain.ActionAccept), string(domain.ActionReject), string(domain.ActionDefer))...).
				Value(&req.Action),

			huh.NewInput().
				Title("Resolver").
				Value(&req.Resolver).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("resolver is required")
					}
					return nil
				}),

			huh.NewText().
				Title("Rationale").
				Value(&req.Rationale).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a rationale is required to %s", req.Action)
					}
					return nil
				}),
		).Title("Resolve decision " + req.DecisionID),
	).WithTheme(huh.ThemeCharm())
}

func printResolution(cmd *cobra.Command, res application.ResolveResult) {
	out := cmd.OutOrStdout()
	d := res.Decision
	fmt.Fprintf(out, "Decision %s for %s %s is now %s (by %s)\n", d.ID, d.ComponentID, d.Version, d.Status, d.ResolvedBy)
	if res.Execution != nil {
		fmt.Fprint(out, tui.RenderExecutions([]domain.PipelineExecution{*res.Execution}))
	}
	if res.Reminder != nil {
		fmt.Fprintf(out, "Re-evaluation scheduled for %s\n", res.Reminder.DueAt.Format("2006-01-02"))
	}
}

func defaultResolver() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func newSupersedeCmd(flags *rootFlags) *cobra.Command {
	var (
		resolver   string
		rationale  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "supersede <decision-id>",
		Short: "Reopen a resolved decision under a new pending decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if resolver == "" {
				resolver = defaultResolver()
			}
			return withApp(flags, func(a *app) error {
				d, err := a.lifecycle.Supersede(cmd.Context(), args[0], resolver, rationale)
				if err != nil {
					return err
				}
				if jsonOutput {
					return renderJSON(cmd, d)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Decision %s supersedes %s (%s, due %s)\n",
					d.ID, d.Supersedes, d.Status, d.Deadline.Format("2006-01-02"))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rationale, "rationale", "", "Why the earlier resolution is being corrected (required)")
	cmd.Flags().StringVar(&resolver, "resolver", "", "Who is superseding (defaults to $USER)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the new decision as JSON")

	return cmd
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var (
		componentID string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived decisions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				entries, err := a.lifecycle.History(cmd.Context(), componentID)
				if err != nil {
					return fmt.Errorf("loading history: %w", err)
				}
				if jsonOutput {
					if entries == nil {
						entries = []domain.ArchiveEntry{}
					}
					return renderJSON(cmd, entries)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderHistory(entries))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&componentID, "component", "", "Only show decisions for this component")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output history as JSON")

	return cmd
}
