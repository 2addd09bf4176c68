package model

// RetrievalConfig represents configuration for a retrieval query
type RetrievalConfig struct {
	TopK          int `json:"top_k" yaml:"top_k"`
	MaxQueryChars int `json:"max_query_chars" yaml:"max_query_chars"`
}

// DefaultRetrievalConfig returns the default top-k of 4 and query bound of 1000 characters.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:          4,
		MaxQueryChars: 1000,
	}
}

// Normalize replaces unset values with the defaults.
func (c RetrievalConfig) Normalize() RetrievalConfig {
	d := DefaultRetrievalConfig()
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.MaxQueryChars <= 0 {
		c.MaxQueryChars = d.MaxQueryChars
	}
	return c
}

// ChunkerConfig configures the sliding window chunker.
type ChunkerConfig struct {
	Size    int `json:"size" yaml:"size"`
	Overlap int `json:"overlap" yaml:"overlap"`
}

// DefaultChunkerConfig returns windows of 1000 characters overlapping by 200.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Size:    1000,
		Overlap: 200,
	}
}
