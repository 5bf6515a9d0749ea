// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Othala tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/othala/internal/media"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/parser"
	"github.com/starford/othala/internal/saveservice"
)

// Server wraps the MCP server with Othala tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *saveservice.Service
	media *media.Store
}

// New creates a new MCP server with all Othala tools registered. A nil
// media store leaves the upload_media tool unregistered.
func New(svc *saveservice.Service, mediaStore *media.Store) *Server {
	s := &Server{svc: svc, media: mediaStore}

	s.mcp = server.NewMCPServer(
		"Othala",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_saves",
		mcp.WithDescription("Full-text search through saved links, notes and annotations."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchSaves)

	s.mcp.AddTool(mcp.NewTool("get_save",
		mcp.WithDescription("Read a save with its annotations and backlinks."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the save (e.g. error-handling-and-go)")),
	), s.getSave)

	s.mcp.AddTool(mcp.NewTool("create_save",
		mcp.WithDescription("Create a new save from a URL, a Markdown capture, or both. "+
			"Markdown MUST follow the canonical capture format (optional YAML frontmatter, "+
			"Markdown body with [[refs]] and #tags). Read the contract first via the "+
			"get_capture_contract tool or the othala://capture-format resource."),
		mcp.WithString("url", mcp.Description("URL to save (optional when markdown carries one)")),
		mcp.WithString("title", mcp.Description("Title override (optional)")),
		mcp.WithString("markdown", mcp.Description("Markdown capture following the Othala capture format contract (optional)")),
	), s.createSave)

	s.mcp.AddTool(mcp.NewTool("get_capture_contract",
		mcp.WithDescription("Returns the canonical Othala capture format contract. "+
			"Call this before creating saves from Markdown to ensure correct structure."),
	), s.getCaptureContract)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List all collections with their member counts."),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Run a full relay sync cycle and report what moved."),
	), s.syncNow)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report sync settings, per-status record counts, the pull watermark and configured relays."),
	), s.syncStatus)

	if s.media != nil {
		s.mcp.AddTool(mcp.NewTool("upload_media",
			mcp.WithDescription("Download a file from an HTTP(S) URL or decode a data: URI and store it as media. "+
				"Returns the content-addressed name and a markdownImage snippet for save bodies."),
			mcp.WithString("url", mcp.Required(), mcp.Description("HTTP(S) URL or base64 data: URI of the file")),
			mcp.WithString("filename", mcp.Description("Optional filename whose extension overrides detection")),
		), s.uploadMedia)
	}

	// Resource: capture format contract.
	s.mcp.AddResource(
		mcp.NewResource("othala://capture-format", "Capture Format Contract",
			mcp.WithResourceDescription("Canonical Markdown capture format for creating saves."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCaptureFormatResource,
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

func (s *Server) searchSaves(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no saves matched"), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetSaveDetail(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug)), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := ""
	if v, err := req.RequireString("url"); err == nil {
		rawURL = v
	}
	title := ""
	if v, err := req.RequireString("title"); err == nil {
		title = v
	}
	markdown := ""
	if v, err := req.RequireString("markdown"); err == nil {
		markdown = v
	}
	if rawURL == "" && strings.TrimSpace(markdown) == "" {
		return mcp.NewToolResultError("either url or markdown is required"), nil
	}

	in := saveservice.SaveInput{URL: rawURL, Title: title}
	if markdown != "" {
		c, err := parser.Parse([]byte(markdown))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in = saveservice.SaveInput{
			Slug:        c.Slug,
			URL:         c.URL,
			Title:       c.Title,
			Type:        models.ContentType(c.Type),
			Body:        c.Body,
			Tags:        c.Tags,
			Refs:        c.Refs,
			Visibility:  models.Visibility(c.Visibility),
			Recipients:  c.Recipients,
			Collections: c.Collections,
		}
		// Explicit arguments win over frontmatter.
		if rawURL != "" {
			in.URL = rawURL
		}
		if title != "" {
			in.Title = title
		}
		if in.URL == "" && in.Type == "" {
			in.Type = models.TypeNote
		}
	}

	rec, err := s.svc.CreateSave(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", rec.Slug)), nil
}

func (s *Server) listCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	overviews, err := s.svc.ListCollections(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(overviews) == 0 {
		return mcp.NewToolResultText("no collections yet"), nil
	}
	var lines []string
	for _, o := range overviews {
		c, err := o.Collection.CollectionContent()
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s\t%s\t%d saves", o.Collection.Slug, c.Name, o.SaveCount))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) syncNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.SyncNow(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	overview, err := s.svc.GetSyncOverview(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(overview, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getCaptureContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CaptureFormatContract), nil
}

func (s *Server) readCaptureFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "othala://capture-format",
			MIMEType: "text/markdown",
			Text:     CaptureFormatContract,
		},
	}, nil
}
