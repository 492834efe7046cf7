// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the bones reading to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bones/internal/models"
	"github.com/starford/bones/internal/vibeservice"
)

const classificationsURI = "bones://classifications"

// Server wraps the MCP server with the vibe tools.
type Server struct {
	mcp *server.MCPServer
	svc *vibeservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *vibeservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Bones",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_vibe",
		mcp.WithDescription("Return today's bones reading as seen in the reference time zone. "+
			"A reading from a previous day is reported as stale."),
	), s.getVibe)

	s.mcp.AddTool(mcp.NewTool("set_vibe",
		mcp.WithDescription("Manually override the stored reading. The observation time is now."),
		mcp.WithString("classification", mcp.Required(),
			mcp.Enum(classificationNames()...),
			mcp.Description("Machine name of the classification")),
	), s.setVibe)

	s.mcp.AddTool(mcp.NewTool("classify_text",
		mcp.WithDescription("Classify a piece of text with the keyword rules. "+
			"Set store=true to also record the result as today's reading."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Post text to classify")),
		mcp.WithBoolean("store", mcp.Description("Record the result (default false)")),
	), s.classifyText)

	s.mcp.AddResource(
		mcp.NewResource(classificationsURI, "Classifications",
			mcp.WithResourceDescription("Every classification with its label and meaning."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readClassificationsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func classificationNames() []string {
	out := make([]string, 0, len(models.Classifications))
	for _, c := range models.Classifications {
		out = append(out, c.String())
	}
	return out
}

func (s *Server) getVibe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.svc.GetCurrentView(ctx), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) setVibe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("classification")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := models.ParseClassification(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := s.svc.SetClassification(ctx, c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(view, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) classifyText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !req.GetBool("store", false) {
		c := s.svc.Classify(text)
		return mcp.NewToolResultText(fmt.Sprintf("%s (%s)", c, c.Presentation().Label)), nil
	}
	res, err := s.svc.ClassifyAndSet(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("stored: %s (%s)", res.Classification, res.Label)), nil
}

func (s *Server) readClassificationsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      classificationsURI,
			MIMEType: "text/markdown",
			Text:     ClassificationTable(),
		},
	}, nil
}
