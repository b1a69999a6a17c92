package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/domain"
	"github.com/tollgate/tollgate/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// rootFlags are the persistent flags every command shares.
type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "tollgate",
		Short: "Govern third-party updates before they reach production",
		Long: "tollgate watches upstream components for releases and security advisories, scores each change, " +
			"and holds it at a decision gate until it is accepted, rejected or deferred.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(flags.logLevel)
			if err != nil {
				return err
			}
			if flags.logFormat != "text" && flags.logFormat != "json" {
				return fmt.Errorf("unknown log format %q (valid: text, json)", flags.logFormat)
			}
			logging.Init(level, flags.logFormat, cmd.ErrOrStderr())
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", domain.ConfigFileName, "Path to the configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newScanCmd(flags))
	cmd.AddCommand(newSweepCmd(flags))
	cmd.AddCommand(newPendingCmd(flags))
	cmd.AddCommand(newInspectCmd(flags))
	cmd.AddCommand(newResolveCmd(flags))
	cmd.AddCommand(newSupersedeCmd(flags))
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newEventsCmd(flags))
	cmd.AddCommand(newComponentCmd(flags))
	cmd.AddCommand(newPipelineCmd(flags))
	cmd.AddCommand(newAnalyzeCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newMCPCmd(flags))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}
