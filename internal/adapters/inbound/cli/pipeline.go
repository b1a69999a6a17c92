package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/adapters/outbound/tui"
	"github.com/tollgate/tollgate/internal/domain"
)

func newPipelineCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Inspect and retry deployment pipeline executions",
	}
	cmd.AddCommand(newPipelineListCmd(flags))
	cmd.AddCommand(newPipelineRetryCmd(flags))
	return cmd
}

func newPipelineListCmd(flags *rootFlags) *cobra.Command {
	var (
		filter     domain.PipelineFilter
		status     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipeline executions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = domain.PipelineStatus(status)
			return withApp(flags, func(a *app) error {
				execs, err := a.pipeline.List(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("listing executions: %w", err)
				}
				if jsonOutput {
					if execs == nil {
						execs = []domain.PipelineExecution{}
					}
					return renderJSON(cmd, execs)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderExecutions(execs))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.ComponentID, "component", "", "Only list executions for this component")
	cmd.Flags().StringVar(&status, "status", "", "Only list executions in this status (running, completed, failed)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output executions as JSON")

	return cmd
}

func newPipelineRetryCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "retry <execution-id>",
		Short: "Run a failed pipeline again for the same decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				p, err := a.pipeline.Retry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return renderJSON(cmd, p)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderExecutions([]domain.PipelineExecution{p}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the new execution as JSON")

	return cmd
}
