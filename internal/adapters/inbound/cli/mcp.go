package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcpadapter "github.com/tollgate/tollgate/internal/adapters/inbound/mcp"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server commands",
		Long:  "Commands for running the tollgate MCP (Model Context Protocol) server.",
	}
	cmd.AddCommand(newMCPServeCmd(flags))
	return cmd
}

func newMCPServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start tollgate MCP server (stdio)",
		Long: "Start the tollgate MCP server using stdio transport. This lets AI assistants list pending " +
			"decisions, inspect and resolve them, and score patches.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				s := mcpadapter.NewTollgateMCPServer(mcpadapter.Services{
					Lifecycle: a.lifecycle,
					Registry:  a.registry,
					Profiles:  a.profiles,
					Evaluator: a.evaluator,
					Policy:    a.policy,
					Version:   version,
				})
				return server.ServeStdio(s)
			})
		},
	}
}
