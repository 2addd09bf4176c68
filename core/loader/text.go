package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/ragbot/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseText reads a UTF-8 file as one unit.
func ParseText(path string) ([]model.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return nil, errors.New("file is not valid UTF-8 text")
	}

	return []model.Document{{
		Content:  string(content),
		Metadata: model.Metadata{},
	}}, nil
}

// ParseCSV reads one unit per record, formatted as "column: value" lines.
func ParseCSV(path string) ([]model.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return nil, errors.New("file is not valid UTF-8 text")
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return []model.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	docs := []model.Document{}
	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}

		var b strings.Builder
		for i, value := range record {
			column := fmt.Sprintf("column_%d", i)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				column = strings.TrimSpace(header[i])
			}
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(column)
			b.WriteString(": ")
			b.WriteString(strings.TrimSpace(value))
		}

		docs = append(docs, model.Document{
			Content:  b.String(),
			Metadata: model.Metadata{model.MetadataRow: row},
		})
	}

	return docs, nil
}
