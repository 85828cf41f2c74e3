// Package mcpserver exposes the browser tool router over the Model Context
// Protocol.
//
// Every catalog tool becomes an MCP tool with the same name, description
// and JSON schema. A failing tool call is returned to the client as a
// JSON-RPC error. The console log and cached screenshots are published as
// resources; screenshots are also readable through the screenshot://{name}
// template before they appear in the resource list.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/entrhq/webpreview/pkg/logging"
	browsertools "github.com/entrhq/webpreview/pkg/tools/browser"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server names reported during initialization.
const (
	DefaultName    = "webpreview"
	DefaultVersion = "0.1.0"
)

const instructions = "Open a preview with preview_open, then drive it with the navigate_*, interact_*, " +
	"capture_*, debug_* and automate_* tools. Page tools act on the most recently opened preview " +
	"unless previewId is given."

// Options configures a Server.
type Options struct {
	Name    string
	Version string
	Logger  *logging.Logger
}

// Server binds a router to an MCP server.
type Server struct {
	mcp    *server.MCPServer
	router *browsertools.Router
	log    *logging.Logger

	mu        sync.Mutex
	published map[string]bool
}

// New registers every tool and resource of router on a new MCP server.
func New(router *browsertools.Router, opts Options) (*Server, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard("mcp")
	}

	s := &Server{
		mcp: server.NewMCPServer(opts.Name, opts.Version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, true),
			server.WithInstructions(instructions),
			server.WithRecovery(),
		),
		router:    router,
		log:       opts.Logger,
		published: make(map[string]bool),
	}

	for _, t := range router.Catalog() {
		schema, err := json.Marshal(t.Schema())
		if err != nil {
			return nil, fmt.Errorf("encoding schema of %s: %w", t.Name(), err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), s.callTool(t.Name()))
	}

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(browsertools.ScreenshotURIForm, "Screenshot",
			mcp.WithTemplateDescription("A captured screenshot by name"),
		),
		s.readResource,
	)
	s.syncResources()
	return s, nil
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over in and out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.log.Writer(), "[mcp] ", log.LstdFlags))
	s.log.Infof("serving MCP over stdio")
	return stdio.Listen(ctx, in, out)
}

func (s *Server) callTool(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req.Params.Arguments != nil {
			raw, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", browsertools.ErrInvalidArguments, err)
			}
			args = raw
		}

		res, err := s.router.Dispatch(ctx, name, args)
		if strings.HasPrefix(name, "capture_") || strings.HasPrefix(name, "automate_") {
			s.syncResources()
		}
		if err != nil {
			return nil, err
		}

		out := &mcp.CallToolResult{}
		for _, c := range res.Content {
			out.Content = append(out.Content, mcp.NewTextContent(c.Text))
		}
		return out, nil
	}
}

// syncResources publishes router resources the MCP server does not list
// yet.
func (s *Server) syncResources() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.router.Resources() {
		if s.published[r.URI] {
			continue
		}
		s.published[r.URI] = true
		s.mcp.AddResource(
			mcp.NewResource(r.URI, r.Name, mcp.WithMIMEType(r.MIMEType)),
			s.readResource,
		)
	}
}

func (s *Server) readResource(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return s.read(req.Params.URI)
}

func (s *Server) read(uri string) ([]mcp.ResourceContents, error) {
	content, err := s.router.ReadResource(uri)
	if err != nil {
		return nil, err
	}
	if content.Blob != "" {
		return []mcp.ResourceContents{mcp.BlobResourceContents{
			URI:      content.URI,
			MIMEType: content.MIMEType,
			Blob:     content.Blob,
		}}, nil
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{
		URI:      content.URI,
		MIMEType: content.MIMEType,
		Text:     content.Text,
	}}, nil
}
