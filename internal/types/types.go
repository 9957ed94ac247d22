package types

import (
	"context"

	"github.com/primojavier/pdfrag/internal/models"
)

// Core interfaces
type Processor interface {
	Process(docs []models.Document) ([]models.Chunk, error)
}

type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedChunk, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	StoreRaw(ctx context.Context, docs []models.Document) error
	Store(ctx context.Context, chunks []models.EmbeddedChunk) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.Chunk, error)
	Reset(ctx context.Context) error
	Close()
}
