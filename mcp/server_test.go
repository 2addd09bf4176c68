package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	questions  []string
	maxPages   int
	maxDepth   int
	websiteErr error
}

func (m *mockService) Chat(ctx context.Context, message string) model.ChatResponse {
	m.questions = append(m.questions, message)
	return model.ChatResponse{Response: "Yash maintains ragbot.", Sources: []string{"resume.pdf"}}
}

func (m *mockService) IngestWebsite(ctx context.Context, rawURL string, maxPages int, maxDepth int) (model.WebsiteResult, error) {
	m.maxPages, m.maxDepth = maxPages, maxDepth
	if m.websiteErr != nil {
		return model.WebsiteResult{}, m.websiteErr
	}
	return model.WebsiteResult{URL: rawURL, PagesProcessed: 1, ChunksCreated: 2, ProcessedURLs: []string{rawURL}}, nil
}

func (m *mockService) Status(ctx context.Context) model.Status {
	return model.Status{Engine: "ready", Index: model.IndexStats{Name: "memory", Count: 2}}
}

func TestNewServer(t *testing.T) {
	t.Run("nil service returns error", func(t *testing.T) {
		server, err := NewServer(nil)
		assert.ErrorIs(t, err, ErrMissingService)
		assert.Nil(t, server)
	})

	t.Run("Valid call NewServer", func(t *testing.T) {
		server, err := NewServer(&mockService{})
		require.NoError(t, err)
		assert.NotNil(t, server.Handler())
	})
}

func TestTools(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid call ask", func(t *testing.T) {
		service := &mockService{}
		server, err := NewServer(service)
		require.NoError(t, err)

		_, output, err := server.handleAsk(ctx, nil, AskInput{Question: "What is Yash building?"})
		require.NoError(t, err)
		assert.Equal(t, "Yash maintains ragbot.", output.Answer)
		assert.Equal(t, []string{"resume.pdf"}, output.Sources)
		assert.Equal(t, []string{"What is Yash building?"}, service.questions)
	})

	t.Run("Valid call ingest_website with defaults", func(t *testing.T) {
		service := &mockService{}
		server, err := NewServer(service)
		require.NoError(t, err)

		_, output, err := server.handleIngestWebsite(ctx, nil, IngestWebsiteInput{URL: "https://example.com/"})
		require.NoError(t, err)
		assert.Equal(t, 1, output.PagesProcessed)
		assert.Equal(t, 2, output.ChunksCreated)
		assert.Equal(t, 0, service.maxPages)
		assert.Equal(t, -1, service.maxDepth)
	})

	t.Run("ingest_website error is returned", func(t *testing.T) {
		service := &mockService{websiteErr: helper.NewKindError(helper.ErrExtract, "crawl", errors.New("no content"))}
		server, err := NewServer(service)
		require.NoError(t, err)

		depth := 0
		_, _, err = server.handleIngestWebsite(ctx, nil, IngestWebsiteInput{URL: "https://example.com/", MaxDepth: &depth})
		assert.ErrorIs(t, err, helper.ErrExtract)
		assert.Equal(t, 0, service.maxDepth)
	})
}

func TestStatusResource(t *testing.T) {
	server, err := NewServer(&mockService{})
	require.NoError(t, err)

	result, err := server.handleStatusResource(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: statusURI},
	})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var status model.Status
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &status))
	assert.Equal(t, "ready", status.Engine)
	assert.Equal(t, int64(2), status.Index.Count)
}
