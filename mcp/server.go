// Package mcp exposes the knowledge base to AI assistants over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/siherrmann/ragbot/model"
)

// Version is the MCP server version.
const Version = "0.1.0"

// ErrMissingService is returned when no knowledge base is given.
var ErrMissingService = errors.New("mcp: knowledge base service is required")

// Service is the part of the knowledge base offered as tools.
type Service interface {
	Chat(ctx context.Context, message string) model.ChatResponse
	IngestWebsite(ctx context.Context, rawURL string, maxPages int, maxDepth int) (model.WebsiteResult, error)
	Status(ctx context.Context) model.Status
}

// Server is the MCP server of ragbot.
type Server struct {
	service Service
	server  *mcp.Server
}

// NewServer creates a server with the ask and ingest_website tools and the
// status resource.
func NewServer(service Service) (*Server, error) {
	if service == nil {
		return nil, ErrMissingService
	}

	s := &Server{
		service: service,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "ragbot",
			Version: Version,
		}, nil),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns a streamable http handler to mount next to the chat api.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}
