package model

import "time"

// Document is one loaded unit (a pdf page, a csv row, a crawled page) before chunking.
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// NewDocument creates a unit stamped with its source.
func NewDocument(content string, source string) Document {
	return Document{
		Content:  content,
		Metadata: Metadata{MetadataSource: source},
	}
}

// StampSource sets the source of every unit, replacing what parsers put there.
func StampSource(docs []Document, source string) {
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = Metadata{}
		}
		docs[i].Metadata[MetadataSource] = source
	}
}

// Page is a crawled web page with its extracted text.
type Page struct {
	URL   string `json:"url"`
	Text  string `json:"text"`
	Depth int    `json:"depth"`
}

// SourceRecord is one entry of the ingested sources registry.
type SourceRecord struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Chunks    int       `json:"chunks"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
