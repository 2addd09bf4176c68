package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const statusURI = "ragbot://status"

// AskInput is the input schema of the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question about the person behind the knowledge base"`
}

// AskOutput is the output schema of the ask tool.
type AskOutput struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// IngestWebsiteInput is the input schema of the ingest_website tool.
type IngestWebsiteInput struct {
	URL      string `json:"url" jsonschema:"the website to add to the knowledge base"`
	MaxPages int    `json:"max_pages,omitempty" jsonschema:"maximum number of pages to crawl (default 5)"`
	MaxDepth *int   `json:"max_depth,omitempty" jsonschema:"maximum link depth from the url (default 1)"`
}

// IngestWebsiteOutput is the output schema of the ingest_website tool.
type IngestWebsiteOutput struct {
	PagesProcessed int      `json:"pages_processed"`
	ChunksCreated  int      `json:"chunks_created"`
	ProcessedURLs  []string `json:"processed_urls"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the ingested documents and websites",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_website",
		Description: "Crawl a website and add its pages to the knowledge base",
	}, s.handleIngestWebsite)
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	response := s.service.Chat(ctx, input.Question)
	return nil, AskOutput{Answer: response.Response, Sources: response.Sources}, nil
}

func (s *Server) handleIngestWebsite(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestWebsiteInput,
) (*mcp.CallToolResult, IngestWebsiteOutput, error) {
	maxDepth := -1
	if input.MaxDepth != nil {
		maxDepth = *input.MaxDepth
	}

	result, err := s.service.IngestWebsite(ctx, input.URL, input.MaxPages, maxDepth)
	if err != nil {
		return nil, IngestWebsiteOutput{}, err
	}

	return nil, IngestWebsiteOutput{
		PagesProcessed: result.PagesProcessed,
		ChunksCreated:  result.ChunksCreated,
		ProcessedURLs:  result.ProcessedURLs,
	}, nil
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         statusURI,
		Name:        "status",
		Description: "Index statistics and readiness of the chat engine",
		MIMEType:    "application/json",
	}, s.handleStatusResource)
}

func (s *Server) handleStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(s.service.Status(ctx))
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
