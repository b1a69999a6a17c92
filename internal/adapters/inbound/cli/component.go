package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/adapters/outbound/tui"
	"github.com/tollgate/tollgate/internal/domain"
)

func newComponentCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "component",
		Aliases: []string{"components"},
		Short:   "Manage the component registry",
	}
	cmd.AddCommand(newComponentSyncCmd(flags))
	cmd.AddCommand(newComponentAddCmd(flags))
	cmd.AddCommand(newComponentListCmd(flags))
	cmd.AddCommand(newComponentStatusCmd(flags, "pause", "Stop checking a component for changes"))
	cmd.AddCommand(newComponentStatusCmd(flags, "resume", "Resume checking a paused component"))
	return cmd
}

func newComponentSyncCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Register the components listed in the config file",
		Long:  "Register every component from the components section of the config file that is not registered yet. Registered components are left untouched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				report, err := a.registry.Sync(cmd.Context(), a.cfg.Components)
				if err != nil {
					return fmt.Errorf("syncing components: %w", err)
				}
				if jsonOutput {
					return renderJSON(cmd, report)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderSync(report))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the sync report as JSON")

	return cmd
}

func newComponentAddCmd(flags *rootFlags) *cobra.Command {
	var cc domain.ComponentConfig

	cmd := &cobra.Command{
		Use:   "add <id> <upstream>",
		Short: "Register a component",
		Long: "Register a component by ID and upstream. The upstream is a GitHub owner/name, a repository URL " +
			"or a local git path. Without --version the first release seen becomes the baseline.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc.ID, cc.Upstream = args[0], args[1]
			return withApp(flags, func(a *app) error {
				if _, ok := a.profiles[cc.Profile]; cc.Profile != "" && !ok {
					return fmt.Errorf("unknown profile %q", cc.Profile)
				}
				c, err := a.registry.Register(cmd.Context(), cc.Component())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s) at %s\n", c.ID, c.Upstream, versionOrBaseline(c.Version))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cc.Version, "version", "", "Currently adopted version")
	cmd.Flags().StringSliceVar(&cc.Monitor, "monitor", nil, "What to watch: releases, advisories (default releases)")
	cmd.Flags().StringVar(&cc.Profile, "profile", "", "Evaluation profile")

	return cmd
}

func versionOrBaseline(v string) string {
	if v == "" {
		return "(baseline pending)"
	}
	return v
}

func newComponentListCmd(flags *rootFlags) *cobra.Command {
	var (
		status     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				components, err := a.registry.List(cmd.Context(), domain.ComponentFilter{Status: domain.ComponentStatus(status)})
				if err != nil {
					return fmt.Errorf("listing components: %w", err)
				}
				if jsonOutput {
					if components == nil {
						components = []domain.Component{}
					}
					return renderJSON(cmd, components)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderComponents(components))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only list components in this status (active, paused)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output components as JSON")

	return cmd
}

// newComponentStatusCmd builds pause and resume.
func newComponentStatusCmd(flags *rootFlags, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				change := a.registry.Pause
				if verb == "resume" {
					change = a.registry.Resume
				}
				c, err := change(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", c.ID, c.Status)
				return nil
			})
		},
	}
}
