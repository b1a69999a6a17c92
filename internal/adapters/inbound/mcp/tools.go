package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tollgate/tollgate/internal/adapters/outbound/diffparse"
	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
)

// registerTools registers all tollgate MCP tools on the given server.
func registerTools(s *server.MCPServer, svc Services) {
	s.AddTool(
		mcplib.NewTool("tollgate_list_pending",
			mcplib.WithDescription("Lists decisions awaiting a human resolution, oldest deadline first"),
		),
		handleListPending(svc),
	)

	s.AddTool(
		mcplib.NewTool("tollgate_inspect_decision",
			mcplib.WithDescription("Returns a decision with its evaluation, risk assessment, scenarios and pipeline runs"),
			mcplib.WithString("decision_id",
				mcplib.Required(),
				mcplib.Description("ID of the decision to inspect"),
			),
		),
		handleInspectDecision(svc),
	)

	s.AddTool(
		mcplib.NewTool("tollgate_resolve_decision",
			mcplib.WithDescription("Accepts, rejects or defers a pending decision. A rationale is required."),
			mcplib.WithString("decision_id",
				mcplib.Required(),
				mcplib.Description("ID of the decision to resolve"),
			),
			mcplib.WithString("action",
				mcplib.Required(),
				mcplib.Enum("accept", "reject", "defer"),
				mcplib.Description("Resolution to apply"),
			),
			mcplib.WithString("rationale",
				mcplib.Required(),
				mcplib.Description("Why this resolution was chosen"),
			),
			mcplib.WithString("resolver",
				mcplib.Description("Who is resolving (defaults to mcp)"),
			),
		),
		handleResolveDecision(svc),
	)

	s.AddTool(
		mcplib.NewTool("tollgate_list_components",
			mcplib.WithDescription("Lists registered components with their adopted versions"),
			mcplib.WithString("status",
				mcplib.Enum("active", "paused"),
				mcplib.Description("Only list components in this status"),
			),
		),
		handleListComponents(svc),
	)

	s.AddTool(
		mcplib.NewTool("tollgate_analyze_patch",
			mcplib.WithDescription("Analyzes and scores a unified diff or format-patch series without recording anything"),
			mcplib.WithString("diff",
				mcplib.Required(),
				mcplib.Description("Unified diff or git format-patch text"),
			),
			mcplib.WithString("from",
				mcplib.Required(),
				mcplib.Description("Currently adopted version"),
			),
			mcplib.WithString("to",
				mcplib.Required(),
				mcplib.Description("Candidate version"),
			),
			mcplib.WithString("component",
				mcplib.Description("Component the patch belongs to"),
			),
			mcplib.WithString("profile",
				mcplib.Description("Evaluation profile (defaults to default)"),
			),
		),
		handleAnalyzePatch(svc),
	)
}

func handleListPending(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		pending, err := svc.Lifecycle.ListPending(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("listing pending decisions: %v", err)), nil
		}
		if pending == nil {
			pending = []domain.Decision{}
		}
		return jsonResult(pending)
	}
}

func handleInspectDecision(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		id, err := request.RequireString("decision_id")
		if err != nil {
			return errorResult("decision_id parameter is required"), nil
		}
		in, err := svc.Lifecycle.Inspect(ctx, id)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return jsonResult(in)
	}
}

func handleResolveDecision(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		id, err := request.RequireString("decision_id")
		if err != nil {
			return errorResult("decision_id parameter is required"), nil
		}
		action, err := request.RequireString("action")
		if err != nil {
			return errorResult("action parameter is required"), nil
		}
		resolver := request.GetString("resolver", "")
		if strings.TrimSpace(resolver) == "" {
			resolver = "mcp"
		}

		res, err := svc.Lifecycle.Resolve(ctx, application.ResolveRequest{
			DecisionID: id,
			Action:     action,
			Resolver:   resolver,
			Rationale:  request.GetString("rationale", ""),
		})
		switch {
		case errors.Is(err, domain.ErrMissingRationale):
			return errorResult("a rationale is required to " + action + " a decision"), nil
		case err != nil:
			return errorResult(err.Error()), nil
		}
		return jsonResult(res)
	}
}

func handleListComponents(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		filter := domain.ComponentFilter{Status: domain.ComponentStatus(request.GetString("status", ""))}
		components, err := svc.Registry.List(ctx, filter)
		if err != nil {
			return errorResult(fmt.Sprintf("listing components: %v", err)), nil
		}
		if components == nil {
			components = []domain.Component{}
		}
		return jsonResult(components)
	}
}

func handleAnalyzePatch(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		text, err := request.RequireString("diff")
		if err != nil {
			return errorResult("diff parameter is required"), nil
		}
		from, err := request.RequireString("from")
		if err != nil {
			return errorResult("from parameter is required"), nil
		}
		to, err := request.RequireString("to")
		if err != nil {
			return errorResult("to parameter is required"), nil
		}

		diff, err := diffparse.ParseBytes([]byte(text))
		if err != nil {
			return errorResult(fmt.Sprintf("parsing diff: %v", err)), nil
		}
		profileName := request.GetString("profile", "")
		profile, ok := svc.Profiles.Resolve(profileName)
		if !ok {
			return errorResult(fmt.Sprintf("unknown profile %q (known: %s)", profileName, strings.Join(svc.Profiles.Names(), ", "))), nil
		}

		change := domain.VersionChange{
			ComponentID: request.GetString("component", ""),
			Kind:        domain.ChangeRelease,
			FromVersion: from,
			ToVersion:   to,
			Notes:       diff.Notes,
		}
		assessed, err := application.AssessChange(change, diff, profile, svc.Evaluator, svc.Policy)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return jsonResult(assessed)
	}
}

// jsonResult marshals v to indented JSON and returns it as a text result.
func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

// errorResult returns a CallToolResult with IsError set.
func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
