package model

// Turn is one exchange in the conversation history.
type Turn struct {
	Human     string `json:"human"`
	Assistant string `json:"assistant"`
}

// FileFailure reports why one uploaded file was not ingested.
type FileFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// FileResult is the outcome of ingesting one file.
type FileResult struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// UploadResult is the outcome of ingesting a batch of files.
type UploadResult struct {
	Processed []FileResult  `json:"files"`
	Failed    []FileFailure `json:"failed_files,omitempty"`
}

// WebsiteResult is the outcome of ingesting a website.
type WebsiteResult struct {
	URL            string   `json:"url"`
	PagesProcessed int      `json:"pages_processed"`
	ChunksCreated  int      `json:"chunks_created"`
	ProcessedURLs  []string `json:"processed_urls"`
}

// ChatResponse is the answer to one chat message.
type ChatResponse struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
}

// Status reports index statistics, engine state and credential presence.
type Status struct {
	Index       IndexStats      `json:"index"`
	IndexError  string          `json:"index_error,omitempty"`
	Engine      string          `json:"engine"`
	EngineError string          `json:"engine_error,omitempty"`
	Credentials map[string]bool `json:"credentials"`
}
