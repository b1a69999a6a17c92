package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
	"github.com/tollgate/tollgate/internal/domain/decision"
	"github.com/tollgate/tollgate/internal/domain/scoring"
)

// Services are the collaborators the MCP tools call into.
type Services struct {
	Lifecycle *application.LifecycleService
	Registry  *application.RegistryService
	Profiles  domain.ProfileSet
	Evaluator *scoring.Evaluator
	Policy    decision.Policy
	// Version is reported to MCP clients.
	Version string
}

// NewTollgateMCPServer creates an MCP server with all tollgate tools and
// resources registered.
func NewTollgateMCPServer(svc Services) *server.MCPServer {
	if svc.Version == "" {
		svc.Version = "dev"
	}
	if svc.Evaluator == nil {
		svc.Evaluator = scoring.NewEvaluator()
	}
	s := server.NewMCPServer(
		"tollgate",
		svc.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	registerTools(s, svc)
	registerResources(s, svc)

	return s
}
