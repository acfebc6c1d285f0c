// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the content engine to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/models"
)

const formatURI = "formwork://page-format"

// Engine is the subset of the content engine the tools call.
type Engine interface {
	Pages() ([]models.PageSummary, error)
	Detail(route string) (models.PageDetail, error)
	Conflicts() ([]content.Conflict, error)
	ResolvePath(ctx context.Context, path string) (models.ResolveOutcome, error)
	ClearCache() error
	InvalidateRoute(route string) (int, error)
}

// Server wraps the MCP server with content tools.
type Server struct {
	mcp    *server.MCPServer
	engine Engine
}

// New creates a new MCP server with all tools registered.
func New(engine Engine, version string) *Server {
	s := &Server{engine: engine}

	s.mcp = server.NewMCPServer(
		"Formwork",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("resolve_route",
		mcp.WithDescription("Resolve a request path the way the site would serve it: "+
			"page, file, redirect or error page."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Request path (e.g. /blog/page/2/)")),
	), s.resolveRoute)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List all pages of the content tree, or those under a route."),
		mcp.WithString("route", mcp.Description("Optional route prefix (empty for all)")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read a page: frontmatter-derived attributes, body and attached files."),
		mcp.WithString("route", mcp.Required(), mcp.Description("Page route (e.g. blog/first)")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("clear_cache",
		mcp.WithDescription("Drop cached responses. With a route, only that route's variants are dropped."),
		mcp.WithString("route", mcp.Description("Optional page route")),
	), s.clearCache)

	s.mcp.AddTool(mcp.NewTool("list_conflicts",
		mcp.WithDescription("Report sibling directories whose names collide once the ordering prefix is removed."),
	), s.listConflicts)

	s.mcp.AddTool(mcp.NewTool("get_page_contract",
		mcp.WithDescription("Returns the content directory conventions. "+
			"Call this before editing content to keep routes stable."),
	), s.getPageContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Page Format Contract",
			mcp.WithResourceDescription("Directory layout and frontmatter keys understood by the engine."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPageFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// optionalString returns the slash-trimmed argument, or "" when absent.
func optionalString(req mcp.CallToolRequest, key string) string {
	v, err := req.RequireString(key)
	if err != nil {
		return ""
	}
	return strings.Trim(v, "/")
}

func (s *Server) resolveRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.engine.ResolvePath(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) listPages(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := optionalString(req, "route")

	pages, err := s.engine.Pages()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var routes []string
	for _, p := range pages {
		if prefix == "" || p.Route == prefix || strings.HasPrefix(p.Route, prefix+"/") {
			routes = append(routes, p.Route)
		}
	}
	if len(routes) == 0 {
		return mcp.NewToolResultText("no pages found"), nil
	}
	return mcp.NewToolResultText(strings.Join(routes, "\n")), nil
}

func (s *Server) readPage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	route, err := req.RequireString("route")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.engine.Detail(strings.Trim(route, "/"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", route)), nil
	}
	return jsonResult(d)
}

func (s *Server) clearCache(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	route := optionalString(req, "route")
	if route == "" {
		if err := s.engine.ClearCache(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("cache cleared"), nil
	}
	n, err := s.engine.InvalidateRoute(route)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed %d entries for %s", n, route)), nil
}

func (s *Server) listConflicts(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cs, err := s.engine.Conflicts()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(cs) == 0 {
		return mcp.NewToolResultText("no conflicts"), nil
	}
	lines := make([]string, 0, len(cs))
	for _, c := range cs {
		lines = append(lines, c.String())
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getPageContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PageFormatContract), nil
}

func (s *Server) readPageFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PageFormatContract,
		},
	}, nil
}
