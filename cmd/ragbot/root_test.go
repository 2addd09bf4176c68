package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siherrmann/ragbot/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryConfigFile writes a config with the in-memory store and clears the
// provider key so no network call is made.
func memoryConfigFile(t *testing.T) string {
	t.Helper()
	t.Setenv("GOOGLE_API_KEY", "")

	path := filepath.Join(t.TempDir(), "ragbot.yaml")
	content := "log:\n  level: error\nvector_store:\n  type: memory\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	out, err := execute(t, "", "version")
	assert.NoError(t, err)
	assert.Contains(t, out, "ragbot version test-version-1.0.0")
}

func TestRootCmd(t *testing.T) {
	t.Run("All commands are registered", func(t *testing.T) {
		names := map[string]bool{}
		for _, cmd := range rootCmd.Commands() {
			names[cmd.Name()] = true
		}
		for _, name := range []string{"serve", "ingest", "crawl", "ask", "chat", "status", "sources", "delete", "reindex", "mcp", "version"} {
			assert.True(t, names[name], "Expected command %s to be registered", name)
		}
	})

	t.Run("Missing config file returns error", func(t *testing.T) {
		_, err := execute(t, "", "status", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestStatusCmd(t *testing.T) {
	path := memoryConfigFile(t)

	t.Run("Valid call status as JSON", func(t *testing.T) {
		out, err := execute(t, "", "status", "--config", path, "--json")
		require.NoError(t, err)

		var status model.Status
		require.NoError(t, json.Unmarshal([]byte(out), &status))
		assert.Equal(t, "unavailable", status.Engine)
		assert.Equal(t, map[string]bool{"GOOGLE_API_KEY": false}, status.Credentials)
	})

	t.Run("Valid call status as text", func(t *testing.T) {
		out, err := execute(t, "", "status", "--config", path, "--json=false")
		require.NoError(t, err)
		assert.Contains(t, out, "Engine:  unavailable")
		assert.Contains(t, out, "GOOGLE_API_KEY: missing")
	})
}

func TestAskCmd(t *testing.T) {
	path := memoryConfigFile(t)

	t.Run("Valid call ask with an unavailable knowledge base", func(t *testing.T) {
		out, err := execute(t, "", "ask", "--config", path, "Who", "is", "Yash?")
		require.NoError(t, err)
		assert.Contains(t, out, "I'm having trouble accessing my knowledge base about Yash.")
		assert.NotContains(t, out, "Sources:")
	})

	t.Run("Valid call ask reads the question from stdin", func(t *testing.T) {
		out, err := execute(t, "What does Yash build?\n", "ask", "--config", path, "--json")
		require.NoError(t, err)

		var response model.ChatResponse
		require.NoError(t, json.Unmarshal([]byte(out), &response))
		assert.Contains(t, response.Response, "knowledge base about Yash")
		assert.Empty(t, response.Sources)
	})

	t.Run("Empty question returns error", func(t *testing.T) {
		_, err := execute(t, "  \n", "ask", "--config", path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "question is required")
	})
}

func TestSourcesCmd(t *testing.T) {
	path := memoryConfigFile(t)

	_, err := execute(t, "", "sources", "--config", path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pgvector")
}

func TestIngestCmd(t *testing.T) {
	path := memoryConfigFile(t)

	t.Run("Name with several files returns error", func(t *testing.T) {
		_, err := execute(t, "", "ingest", "--config", path, "--name", "resume", "a.txt", "b.txt")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "--name needs exactly one file")
	})
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resume.txt"), []byte("Yash"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes", "go.md"), []byte("Go"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.png"), []byte("png"), 0o644))

	supports := func(name string) bool {
		return strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".md")
	}

	t.Run("Valid call expandPaths with a folder", func(t *testing.T) {
		paths, err := expandPaths([]string{dir}, supports)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{filepath.Join(dir, "resume.txt"), filepath.Join(dir, "notes", "go.md")}, paths)
	})

	t.Run("Explicit files are kept even if unsupported", func(t *testing.T) {
		paths, err := expandPaths([]string{filepath.Join(dir, "photo.png")}, supports)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "photo.png")}, paths)
	})

	t.Run("Missing path returns error", func(t *testing.T) {
		_, err := expandPaths([]string{filepath.Join(dir, "missing")}, supports)
		assert.Error(t, err)
	})

	t.Run("Folder without supported files returns error", func(t *testing.T) {
		empty := t.TempDir()
		_, err := expandPaths([]string{empty}, supports)
		assert.Error(t, err)
	})
}
