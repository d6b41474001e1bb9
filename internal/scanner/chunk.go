package scanner

import "strings"

// Chunk is one overlapping window of a file's text. Start and End are rune
// offsets into the original text.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Chunker splits file content into overlapping windows.
type Chunker struct {
	Size    int
	Overlap int
	// MinContent is the trimmed length below which a file is not scanned.
	MinContent int
}

// Chunker defaults.
const (
	DefaultChunkSize       = 2048
	DefaultChunkOverlap    = 300
	DefaultMinContentChars = 50
)

// DefaultChunker returns a chunker with the shipped sizes.
func DefaultChunker() Chunker {
	return Chunker{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap, MinContent: DefaultMinContentChars}
}

// Split returns the trimmed, non-empty chunks of text. Each chunk after the
// first starts Overlap runes before the end of the previous one.
func (c Chunker) Split(text string) []Chunk {
	if len([]rune(strings.TrimSpace(text))) < c.MinContent {
		return nil
	}
	size := c.Size
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := c.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(text)
	n := len(runes)
	var out []Chunk
	for start := 0; start < n; {
		end := min(start+size, n)
		if t := strings.TrimSpace(string(runes[start:end])); t != "" {
			out = append(out, Chunk{Index: len(out), Start: start, End: end, Text: t})
		}
		if end == n {
			break
		}
		start = end - overlap
	}
	return out
}

// Split chunks text with the given size and overlap and the default
// minimum content length.
func Split(text string, size, overlap int) []Chunk {
	return Chunker{Size: size, Overlap: overlap, MinContent: DefaultMinContentChars}.Split(text)
}
