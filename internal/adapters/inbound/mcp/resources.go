package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tollgate/tollgate/internal/domain"
)

// registerResources registers all tollgate MCP resources on the given server.
func registerResources(s *server.MCPServer, svc Services) {
	s.AddResource(
		mcplib.NewResource(
			"tollgate://pending",
			"Pending Decisions",
			mcplib.WithResourceDescription("Decisions awaiting resolution, oldest deadline first"),
			mcplib.WithMIMEType("application/json"),
		),
		handlePendingResource(svc),
	)

	s.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"tollgate://decisions/{id}",
			"Decision",
			mcplib.WithTemplateDescription("A decision with its evaluation and pipeline runs"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		handleDecisionResource(svc),
	)
}

func handlePendingResource(svc Services) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		pending, err := svc.Lifecycle.ListPending(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing pending decisions: %w", err)
		}
		if pending == nil {
			pending = []domain.Decision{}
		}
		return jsonContents(request.Params.URI, pending)
	}
}

func handleDecisionResource(svc Services) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		id, ok := request.Params.Arguments["id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("decision id is required")
		}
		in, err := svc.Lifecycle.Inspect(ctx, id)
		if err != nil {
			return nil, err
		}
		return jsonContents(request.Params.URI, in)
	}
}

func jsonContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
