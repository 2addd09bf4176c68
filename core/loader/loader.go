package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/siherrmann/ragbot/core/pipeline"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
)

// ParseFunc reads a file and returns its units. Parsers do not set the source.
type ParseFunc func(path string) ([]model.Document, error)

// LoadError reports a file that could not be parsed.
type LoadError struct {
	Filename string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Filename, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{helper.ErrLoad, e.Err}
}

// Loader dispatches files to a parser by extension and chunks the result.
type Loader struct {
	parsers  map[string]ParseFunc
	fallback ParseFunc
	chunker  pipeline.ChunkFunc
	log      *slog.Logger
}

// NewLoader creates a loader with parsers for pdf, txt, csv, doc/docx,
// ppt/pptx and xls/xlsx. Files with other extensions are read as plain text.
func NewLoader(chunker pipeline.ChunkFunc, logger *slog.Logger) *Loader {
	if chunker == nil {
		chunker = pipeline.DefaultChunker()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		parsers: map[string]ParseFunc{
			".pdf":  ParsePDF,
			".txt":  ParseText,
			".md":   ParseText,
			".csv":  ParseCSV,
			".docx": ParseDOCX,
			".doc":  ParseLegacyOffice,
			".pptx": ParsePPTX,
			".ppt":  ParseLegacyOffice,
			".xlsx": ParseXLSX,
			".xls":  ParseLegacyOffice,
		},
		fallback: ParseText,
		chunker:  chunker,
		log:      logger,
	}
}

// Register adds or replaces the parser of an extension like ".html".
func (l *Loader) Register(ext string, parse ParseFunc) {
	l.parsers[strings.ToLower(ext)] = parse
}

// Extensions returns the registered extensions in sorted order.
func (l *Loader) Extensions() []string {
	exts := make([]string, 0, len(l.parsers))
	for ext := range l.parsers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether a parser is registered for the extension of name.
func (l *Loader) Supports(name string) bool {
	_, ok := l.parsers[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Load parses the file at path and stamps every unit with source = displayName.
// The extension is taken from displayName, falling back to path.
func (l *Loader) Load(path string, displayName string) (docs []model.Document, err error) {
	if displayName == "" {
		displayName = filepath.Base(path)
	}

	ext := strings.ToLower(filepath.Ext(displayName))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(path))
	}

	parse, ok := l.parsers[ext]
	if !ok {
		l.log.Warn("Unsupported file type, attempting to read as text", slog.String("file", displayName), slog.String("extension", ext))
		parse = l.fallback
	}

	// Some parsers panic on malformed input
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = &LoadError{Filename: displayName, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	docs, err = parse(path)
	if err != nil {
		return nil, &LoadError{Filename: displayName, Err: err}
	}

	model.StampSource(docs, displayName)

	l.log.Debug("Loaded file", slog.String("file", displayName), slog.Int("units", len(docs)))

	return docs, nil
}

// LoadAndChunk loads a file and splits its units into chunks.
func (l *Loader) LoadAndChunk(path string, displayName string) ([]model.Chunk, error) {
	docs, err := l.Load(path, displayName)
	if err != nil {
		return nil, err
	}

	chunks, err := pipeline.SplitDocuments(l.chunker, docs)
	if err != nil {
		return nil, helper.NewError("split documents", err)
	}

	return chunks, nil
}
