package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/adapters/outbound/tui"
	"github.com/tollgate/tollgate/internal/application"
)

func newScanCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scan [component-id]",
		Short: "Check upstreams for new releases and advisories",
		Long: "Check every active component (or just the one named) for new releases and security advisories. " +
			"Each new change is analyzed, scored and held at a pending decision.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				var (
					report application.ScanReport
					err    error
				)
				if len(args) == 1 {
					report, err = a.detector.CheckNow(cmd.Context(), args[0], a.governance.HandleChange)
				} else {
					report, err = a.detector.Scan(cmd.Context(), a.governance.HandleChange)
				}
				if err != nil {
					return fmt.Errorf("scan failed: %w", err)
				}
				if jsonOutput {
					return renderJSON(cmd, report)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderScan(report))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the scan report as JSON")

	return cmd
}

func newSweepCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark overdue decisions and fire due re-evaluation reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				report, err := a.lifecycle.Sweep(cmd.Context())
				if err != nil {
					return fmt.Errorf("sweep failed: %w", err)
				}
				if jsonOutput {
					return renderJSON(cmd, report)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderSweep(report))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the sweep report as JSON")

	return cmd
}
