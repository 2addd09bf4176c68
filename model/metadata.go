package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/siherrmann/ragbot/helper"
)

// Well known metadata keys.
const (
	MetadataSource     = "source"
	MetadataType       = "type"
	MetadataChunkIndex = "chunk_index"
	MetadataStartPos   = "start_pos"
	MetadataEndPos     = "end_pos"
	MetadataPage       = "page"
	MetadataRow        = "row"
	MetadataSheet      = "sheet"
	MetadataSlide      = "slide"
)

// TypeWebsite marks units produced by the web extractor.
const TypeWebsite = "website"

// Metadata represents JSONB metadata stored in PostgreSQL
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	// lib/pq sends []byte as bytea, jsonb columns need text
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return helper.NewError("metadata scan", errors.New("unsupported metadata column type"))
	}
}

// Source returns the citation identifier of a unit, a filename or a page url.
func (m Metadata) Source() string {
	s, _ := m[MetadataSource].(string)
	return s
}

// Type returns the optional unit type, for example "website".
func (m Metadata) Type() string {
	s, _ := m[MetadataType].(string)
	return s
}

// Clone returns a shallow copy that can be stamped without touching m.
func (m Metadata) Clone() Metadata {
	c := make(Metadata, len(m)+3)
	for k, v := range m {
		c[k] = v
	}
	return c
}
