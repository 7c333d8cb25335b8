// Package mcpserver exposes the reference index as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mesh-intelligence/assetref/internal/scanner"
	"github.com/mesh-intelligence/assetref/internal/search"
	"github.com/mesh-intelligence/assetref/pkg/assetref"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

// Service is the part of *assetref.Service the tools call.
type Service interface {
	ResolveIdentifier(path string) (string, error)
	ResolvePath(guid string) (string, error)
	GetReferences(path string) ([]string, error)
	Dependencies(path string) ([]string, error)
	Search(ctx context.Context, path string, opts search.Options) ([]search.Match, error)
	Sweep(ctx context.Context) (scanner.SweepStats, error)
	Status() (assetref.Status, error)
}

var _ Service = (*assetref.Service)(nil)

// New returns a server with every tool registered. Searches and sweeps
// give up after timeout.
func New(svc Service, version string, timeout time.Duration) *server.MCPServer {
	s := server.NewMCPServer(
		"assetref",
		version,
		server.WithToolCapabilities(true),
	)
	Register(s, svc, timeout)
	return s
}

// Register adds the tools to s.
func Register(s *server.MCPServer, svc Service, timeout time.Duration) {
	if timeout <= 0 {
		timeout = types.DefaultSearchTimeout
	}
	s.AddTool(resolveGUIDTool(), resolveGUIDHandler(svc))
	s.AddTool(resolvePathTool(), resolvePathHandler(svc))
	s.AddTool(referencesTool(), referencesHandler(svc))
	s.AddTool(dependenciesTool(), dependenciesHandler(svc))
	s.AddTool(searchTool(), searchHandler(svc, timeout))
	s.AddTool(sweepTool(), sweepHandler(svc, timeout))
	s.AddTool(statusTool(), statusHandler(svc))
}

// --- resolve_guid ---

func resolveGUIDTool() mcp.Tool {
	return mcp.NewTool("resolve_guid",
		mcp.WithDescription("Get the 32 character identifier of an asset."),
		mcp.WithString("path",
			mcp.Description("Project-relative asset path (e.g. Assets/Prefabs/Hero.prefab)"),
			mcp.Required(),
		),
	)
}

func resolveGUIDHandler(svc Service) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := req.GetString("path", "")
		if p == "" {
			return toolError(fmt.Errorf("path is required"))
		}
		guid, err := svc.ResolveIdentifier(p)
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(guid), nil
	}
}

// --- resolve_path ---

func resolvePathTool() mcp.Tool {
	return mcp.NewTool("resolve_path",
		mcp.WithDescription("Get the project-relative path of the asset with an identifier."),
		mcp.WithString("guid",
			mcp.Description("32 character lowercase hex identifier"),
			mcp.Required(),
		),
	)
}

func resolvePathHandler(svc Service) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		guid := req.GetString("guid", "")
		if guid == "" {
			return toolError(fmt.Errorf("guid is required"))
		}
		p, err := svc.ResolvePath(guid)
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(p), nil
	}
}

// --- references ---

func referencesTool() mcp.Tool {
	return mcp.NewTool("references",
		mcp.WithDescription("List assets known to reference an asset, from the cache only. Use search for a full lookup."),
		mcp.WithString("path",
			mcp.Description("Project-relative asset path"),
			mcp.Required(),
		),
	)
}

func referencesHandler(svc Service) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := req.GetString("path", "")
		if p == "" {
			return toolError(fmt.Errorf("path is required"))
		}
		refs, err := svc.GetReferences(p)
		if err != nil {
			return toolError(err)
		}
		return formatLines(refs)
	}
}

// --- dependencies ---

func dependenciesTool() mcp.Tool {
	return mcp.NewTool("dependencies",
		mcp.WithDescription("List identifiers an asset was last seen referencing."),
		mcp.WithString("path",
			mcp.Description("Project-relative asset path"),
			mcp.Required(),
		),
	)
}

func dependenciesHandler(svc Service) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := req.GetString("path", "")
		if p == "" {
			return toolError(fmt.Errorf("path is required"))
		}
		deps, err := svc.Dependencies(p)
		if err != nil {
			return toolError(err)
		}
		return formatLines(deps)
	}
}

// --- search ---

func searchTool() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription("Find every asset referencing an asset by searching the project files. Results are also cached."),
		mcp.WithString("path",
			mcp.Description("Project-relative asset path"),
			mcp.Required(),
		),
		mcp.WithBoolean("recursive",
			mcp.Description("Also list referrers of referrers"),
		),
		mcp.WithBoolean("match_path",
			mcp.Description("Also match the path stem as a whole word (e.g. resource load calls)"),
		),
	)
}

func searchHandler(svc Service, timeout time.Duration) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := req.GetString("path", "")
		if p == "" {
			return toolError(fmt.Errorf("path is required"))
		}
		opts := search.Options{
			Recursive: req.GetBool("recursive", false),
			MatchPath: req.GetBool("match_path", false),
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		matches, err := svc.Search(ctx, p, opts)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return toolError(err)
		}

		var sb strings.Builder
		for _, m := range matches {
			sb.WriteString(m.Path)
			if opts.Recursive && m.Target != p {
				fmt.Fprintf(&sb, "  -> %s", m.Target)
			}
			if !m.ByIdentifier {
				sb.WriteString("  (path match)")
			}
			sb.WriteByte('\n')
		}
		if err != nil {
			sb.WriteString("search timed out; results are partial\n")
		}
		if sb.Len() == 0 {
			return mcp.NewToolResultText("No results."), nil
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- sweep ---

func sweepTool() mcp.Tool {
	return mcp.NewTool("sweep",
		mcp.WithDescription("Scan assets changed since the last sweep so the cache is current."),
	)
}

func sweepHandler(svc Service, timeout time.Duration) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		stats, err := svc.Sweep(ctx)
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("visited %d directories, pruned %d, scanned %d files in %s",
			stats.DirsVisited, stats.DirsPruned, stats.FilesEnqueued, stats.Duration.Round(time.Millisecond))), nil
	}
}

// --- status ---

func statusTool() mcp.Tool {
	return mcp.NewTool("status",
		mcp.WithDescription("Report scanner queue length, sweep and search activity."),
	)
}

func statusHandler(svc Service) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := svc.Status()
		if err != nil {
			return toolError(err)
		}
		last := "never"
		if !st.LastSweep.IsZero() {
			last = st.LastSweep.Format(time.RFC3339)
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"queue: %d\nscanning: %t\npaused: %t\nsweeping: %t\nsearching: %t\nlast sweep: %s\n",
			st.QueueLen, st.Scanning, st.Paused, st.Sweeping, st.Searching, last)), nil
	}
}

// --- helpers ---

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func formatLines(lines []string) (*mcp.CallToolResult, error) {
	if len(lines) == 0 {
		return mcp.NewToolResultText("No results."), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n") + "\n"), nil
}
