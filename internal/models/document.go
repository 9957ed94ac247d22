package models

// Document is a raw source file read from the documents folder. Raw holds the
// original bytes, Content the extracted plain text.
type Document struct {
	ID       string
	Name     string
	Path     string
	Raw      []byte
	Content  string
	Metadata map[string]interface{}
}

// Chunk is a token-bounded segment of a document's extracted text. Index is
// the chunk's ordinal position within its document and travels with the chunk
// through embedding and storage, so linkage never relies on slice position alone.
type Chunk struct {
	DocID   string
	DocName string
	Index   int
	Content string
}

// EmbeddedChunk pairs a chunk with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}
