package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"github.com/siherrmann/ragbot/model"
)

// minRunLength is the shortest printable run kept from binary streams.
const minRunLength = 4

// legacyStreams are the compound file streams holding the text of .doc, .ppt and .xls files.
var legacyStreams = map[string]bool{
	"WordDocument":        true,
	"PowerPoint Document": true,
	"Workbook":            true,
	"Book":                true,
}

// ParseLegacyOffice reads the printable text runs of a binary office file.
// Formatting is lost, the result is one unit.
func ParseLegacyOffice(path string) ([]model.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := mscfb.New(f)
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}

	found := false
	parts := []string{}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if !legacyStreams[entry.Name] {
			continue
		}
		found = true

		buf, err := io.ReadAll(entry)
		if err != nil {
			return nil, fmt.Errorf("read stream %s: %w", entry.Name, err)
		}
		if text := extractRuns(buf); text != "" {
			parts = append(parts, text)
		}
	}
	if !found {
		return nil, errNoDocumentPart
	}

	return []model.Document{{
		Content:  strings.Join(parts, "\n"),
		Metadata: model.Metadata{},
	}}, nil
}

// extractRuns returns the printable runs of buf, read as UTF-16LE or as
// single byte text, whichever yields more latin text.
func extractRuns(buf []byte) string {
	wide := wideRuns(buf)
	narrow := narrowRuns(buf)
	if latinScore(wide) >= latinScore(narrow) {
		return wide
	}
	return narrow
}

// latinScore counts letters, digits and spaces below U+0250. Single byte text
// read as UTF-16 decodes to CJK runes and scores close to zero.
func latinScore(s string) int {
	score := 0
	for _, r := range s {
		if r < 0x0250 && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ') {
			score++
		}
	}
	return score
}

func wideRuns(buf []byte) string {
	var (
		out strings.Builder
		run []uint16
	)
	flush := func() {
		if text := strings.TrimSpace(string(utf16.Decode(run))); len(run) >= minRunLength && text != "" {
			if out.Len() > 0 {
				out.WriteString("\n")
			}
			out.WriteString(text)
		}
		run = run[:0]
	}
	for i := 0; i+1 < len(buf); i += 2 {
		c := uint16(buf[i]) | uint16(buf[i+1])<<8
		if isPrintable(rune(c)) {
			run = append(run, c)
			continue
		}
		flush()
	}
	flush()
	return out.String()
}

func narrowRuns(buf []byte) string {
	var out strings.Builder
	for _, field := range bytes.FieldsFunc(buf, func(r rune) bool { return r >= 0x80 || !isPrintable(r) }) {
		if len(field) < minRunLength {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.Write(bytes.TrimSpace(field))
	}
	return out.String()
}

func isPrintable(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.IsPrint(r) && !unicode.Is(unicode.Co, r) && r != unicode.ReplacementChar
}
