package loader

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/siherrmann/ragbot/model"
	"github.com/xuri/excelize/v2"
)

var errNoDocumentPart = errors.New("document part not found in archive")

// ParseDOCX reads the paragraphs of word/document.xml as one unit.
func ParseDOCX(filePath string) ([]model.Document, error) {
	archive, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer archive.Close()

	for _, f := range archive.File {
		if f.Name != "word/document.xml" {
			continue
		}
		text, err := readXMLText(f, "p")
		if err != nil {
			return nil, fmt.Errorf("parse word/document.xml: %w", err)
		}
		return []model.Document{{
			Content:  text,
			Metadata: model.Metadata{},
		}}, nil
	}

	return nil, errNoDocumentPart
}

// ParsePPTX reads one unit per slide in slide order.
func ParsePPTX(filePath string) ([]model.Document, error) {
	archive, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	defer archive.Close()

	type slide struct {
		number int
		file   *zip.File
	}
	slides := []slide{}
	for _, f := range archive.File {
		dir, name := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(name, "slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{number: n, file: f})
	}
	if len(slides) == 0 {
		return nil, errNoDocumentPart
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	docs := make([]model.Document, 0, len(slides))
	for _, s := range slides {
		text, err := readXMLText(s.file, "p")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.file.Name, err)
		}
		docs = append(docs, model.Document{
			Content:  text,
			Metadata: model.Metadata{model.MetadataSlide: s.number},
		})
	}

	return docs, nil
}

// ParseXLSX reads one unit per sheet, cells tab separated and rows on separate lines.
func ParseXLSX(filePath string) ([]model.Document, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	docs := []model.Document{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}

		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line != "" {
				lines = append(lines, line)
			}
		}

		docs = append(docs, model.Document{
			Content:  strings.Join(lines, "\n"),
			Metadata: model.Metadata{model.MetadataSheet: sheet},
		})
	}

	return docs, nil
}

// readXMLText collects the character data of all "t" elements of an office
// xml part, ending a line at every closing paragraph element.
func readXMLText(f *zip.File, paragraph string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var (
		b      strings.Builder
		line   strings.Builder
		inText bool
	)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteString("\t")
			case "br":
				line.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case paragraph:
				if s := strings.TrimSpace(line.String()); s != "" {
					if b.Len() > 0 {
						b.WriteString("\n")
					}
					b.WriteString(s)
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}

	if s := strings.TrimSpace(line.String()); s != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s)
	}

	return b.String(), nil
}
