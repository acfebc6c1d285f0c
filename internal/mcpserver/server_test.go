package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aukc1970/formwork/internal/cache"
	"github.com/aukc1970/formwork/internal/engine"
	"github.com/aukc1970/formwork/internal/models"
	"github.com/aukc1970/formwork/internal/testutil"
)

func testServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	_, store := testutil.Store(t, testutil.Blog())

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	mem, err := cache.NewMemoryStore(16)
	if err != nil {
		t.Fatal(err)
	}
	sc, err := cache.NewSiteCache(mem, nil, cache.Options{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(store, engine.WithCache(sc), engine.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	return New(e, "test"), e
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "resolve_route":
		result, err = srv.resolveRoute(ctx, req)
	case "list_pages":
		result, err = srv.listPages(ctx, req)
	case "read_page":
		result, err = srv.readPage(ctx, req)
	case "clear_cache":
		result, err = srv.clearCache(ctx, req)
	case "list_conflicts":
		result, err = srv.listConflicts(ctx, req)
	case "get_page_contract":
		result, err = srv.getPageContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestResolveRoute(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "resolve_route", map[string]any{"path": "/old-page/"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var out models.ResolveOutcome
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Kind != "redirect" || out.Location != "/new-page/" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestResolveRoute_MissingArgument(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "resolve_route", map[string]any{}); !r.IsError {
		t.Error("expected error without path")
	}
}

func TestListPages(t *testing.T) {
	srv, _ := testServer(t)

	all := resultText(callTool(t, srv, "list_pages", map[string]any{}))
	if !strings.Contains(all, "about") || !strings.Contains(all, "blog/second") {
		t.Errorf("list = %q", all)
	}

	blog := strings.Split(resultText(callTool(t, srv, "list_pages", map[string]any{"route": "/blog/"})), "\n")
	want := []string{"blog", "blog/first", "blog/second"}
	if strings.Join(blog, ",") != strings.Join(want, ",") {
		t.Errorf("blog pages = %v, want %v", blog, want)
	}

	if got := resultText(callTool(t, srv, "list_pages", map[string]any{"route": "nothing"})); got != "no pages found" {
		t.Errorf("empty prefix result = %q", got)
	}
}

func TestReadPage(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_page", map[string]any{"route": "about"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var d models.PageDetail
	if err := json.Unmarshal([]byte(resultText(r)), &d); err != nil {
		t.Fatal(err)
	}
	if d.Title != "About" || d.Template != "page" {
		t.Errorf("detail = %+v", d)
	}
}

func TestReadPageMissing(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "read_page", map[string]any{"route": "nope"}); !r.IsError {
		t.Error("expected error for missing page")
	}
}

func TestClearCache(t *testing.T) {
	srv, e := testServer(t)

	resp := e.Cache()
	resp.Save(cache.Key("blog", nil), &models.Response{Status: 200})
	resp.Save(cache.Key("about", nil), &models.Response{Status: 200})

	if got := resultText(callTool(t, srv, "clear_cache", map[string]any{"route": "blog"})); got != "removed 1 entries for blog" {
		t.Errorf("invalidate = %q", got)
	}
	if got := resultText(callTool(t, srv, "clear_cache", map[string]any{})); got != "cache cleared" {
		t.Errorf("clear = %q", got)
	}
	if keys, _ := resp.Keys(); len(keys) != 0 {
		t.Errorf("keys = %v", keys)
	}
}

func TestListConflicts(t *testing.T) {
	srv, _ := testServer(t)
	if got := resultText(callTool(t, srv, "list_conflicts", nil)); got != "no conflicts" {
		t.Errorf("conflicts = %q", got)
	}
}

func TestPageContract(t *testing.T) {
	srv, _ := testServer(t)
	if got := resultText(callTool(t, srv, "get_page_contract", nil)); got != PageFormatContract {
		t.Error("contract mismatch")
	}
}
