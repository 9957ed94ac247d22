package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primojavier/pdfrag/internal/models"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"valid", "plain ascii text", "plain ascii text"},
		{"valid multibyte", "naïve café", "naïve café"},
		{"invalid byte dropped", "bad\xffbyte", "badbyte"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeUTF8(tt.input))
		})
	}
}

func TestNewWithConfig_RejectsBadTableName(t *testing.T) {
	_, err := NewWithConfig(VectorStoreConfig{
		ConnString: "postgres://localhost:5432/test",
		TableName:  "pdf docs; DROP TABLE users",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

// The tests below need a running Postgres with the pgvector extension.
func testStore(t *testing.T) *VectorStore {
	t.Helper()

	connString := os.Getenv("PDFRAG_TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("PDFRAG_TEST_DATABASE_URL not set")
	}

	s, err := NewWithConfig(VectorStoreConfig{
		ConnString:   connString,
		TableName:    "test_pdf_chunks",
		RawTableName: "test_pdf_raw",
		VectorDim:    3,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Reset(context.Background())
		s.Close()
	})

	return s
}

func TestStoreAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chunks := []models.EmbeddedChunk{
		{
			Chunk:     models.Chunk{DocName: "first.pdf", Index: 0, Content: "about dogs"},
			Embedding: []float32{1, 0, 0},
		},
		{
			Chunk:     models.Chunk{DocName: "first.pdf", Index: 1, Content: "about cats"},
			Embedding: []float32{0, 1, 0},
		},
		{
			Chunk:     models.Chunk{DocName: "second.pdf", Index: 0, Content: "about birds"},
			Embedding: []float32{0, 0, 1},
		},
	}

	require.NoError(t, s.Store(ctx, chunks))

	results, err := s.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "first.pdf", results[0].DocName)
	assert.Equal(t, "about dogs", results[0].Content)
	assert.Equal(t, 0, results[0].Index)
}

func TestStoreRaw(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	docs := []models.Document{
		{
			Name: "doc.pdf",
			Path: "/data/doc.pdf",
			Raw:  []byte("%PDF-1.4 fake"),
			Metadata: map[string]interface{}{
				"length":            int64(13),
				"modification_time": nil,
			},
		},
	}

	require.NoError(t, s.StoreRaw(ctx, docs))
	// Upsert is idempotent per path
	require.NoError(t, s.StoreRaw(ctx, docs))
}

func TestReset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chunks := []models.EmbeddedChunk{
		{
			Chunk:     models.Chunk{DocName: "gone.pdf", Index: 0, Content: "ephemeral"},
			Embedding: []float32{1, 1, 1},
		},
	}
	require.NoError(t, s.Store(ctx, chunks))
	require.NoError(t, s.Reset(ctx))

	results, err := s.Query(ctx, []float32{1, 1, 1}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEnforcePrimaryKey_RejectsBadIdentifiers(t *testing.T) {
	s := &VectorStore{}

	err := s.EnforcePrimaryKey(context.Background(), "features; --", "CustomerID")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")

	err = s.EnforcePrimaryKey(context.Background(), "features", "id; DROP")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}
