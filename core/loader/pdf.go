package loader

import (
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/siherrmann/ragbot/model"
)

// ParsePDF reads one unit per page. Pages without text are skipped.
func ParsePDF(path string) ([]model.Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	docs := []model.Document{}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}

		docs = append(docs, model.Document{
			Content:  text,
			Metadata: model.Metadata{model.MetadataPage: i},
		})
	}

	return docs, nil
}
