package llm_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primojavier/pdfrag/internal/models"
	"github.com/primojavier/pdfrag/pkg/llm"
)

// mockClient records every remote call and answers each text "chunk-N" with
// the vector [N], so ordering survives round trips visibly.
type mockClient struct {
	calls     [][]string
	failCalls int   // fail this many calls before succeeding
	err       error // error returned on failing calls
	short     bool  // return one vector too few
}

func (m *mockClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls = append(m.calls, texts)

	if m.failCalls > 0 {
		m.failCalls--
		return nil, m.err
	}

	n := len(texts)
	if m.short {
		n--
	}

	vectors := make([][]float32, 0, n)
	for _, text := range texts[:n] {
		idx, _ := strconv.Atoi(strings.TrimPrefix(text, "chunk-"))
		vectors = append(vectors, []float32{float32(idx)})
	}
	return vectors, nil
}

func makeChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			DocName: "test.pdf",
			Index:   i,
			Content: fmt.Sprintf("chunk-%d", i),
		}
	}
	return chunks
}

func testConfig() llm.EmbedderConfig {
	return llm.EmbedderConfig{
		MaxBatchSize: 150,
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		RateLimit:    10000,
	}
}

func TestEmbedChunks_BatchPartitioning(t *testing.T) {
	client := &mockClient{}
	embedder := llm.NewWithClient(testConfig(), client)

	embedded, err := embedder.EmbedChunks(context.Background(), makeChunks(151))
	require.NoError(t, err)

	// 151 chunks with batch size 150 means exactly two remote calls
	require.Len(t, client.calls, 2)
	assert.Len(t, client.calls[0], 150)
	assert.Len(t, client.calls[1], 1)

	require.Len(t, embedded, 151)
	for i, chunk := range embedded {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, []float32{float32(i)}, chunk.Embedding)
	}
}

func TestEmbedChunks_SingleBatch(t *testing.T) {
	client := &mockClient{}
	embedder := llm.NewWithClient(testConfig(), client)

	embedded, err := embedder.EmbedChunks(context.Background(), makeChunks(150))
	require.NoError(t, err)
	require.Len(t, client.calls, 1)
	assert.Len(t, embedded, 150)
}

func TestEmbedChunks_Empty(t *testing.T) {
	client := &mockClient{}
	embedder := llm.NewWithClient(testConfig(), client)

	embedded, err := embedder.EmbedChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, embedded)
	assert.Empty(t, client.calls)
}

func TestEmbedChunks_RetryThenSucceed(t *testing.T) {
	client := &mockClient{
		failCalls: 2,
		err:       errors.New("upstream hiccup"),
	}
	embedder := llm.NewWithClient(testConfig(), client)

	embedded, err := embedder.EmbedChunks(context.Background(), makeChunks(3))
	require.NoError(t, err)
	assert.Len(t, embedded, 3)
	assert.Len(t, client.calls, 3) // two failures, one success
}

func TestEmbedChunks_FailureAbortsRun(t *testing.T) {
	client := &mockClient{
		failCalls: 100, // never recovers
		err:       errors.New("endpoint down"),
	}
	embedder := llm.NewWithClient(testConfig(), client)

	embedded, err := embedder.EmbedChunks(context.Background(), makeChunks(151))
	require.Error(t, err)
	assert.Nil(t, embedded)
	assert.Contains(t, err.Error(), "batch 1 of 2")

	// Only the first batch was ever attempted: initial call plus retries
	assert.Len(t, client.calls, 3)
}

func TestEmbedChunks_CountMismatch(t *testing.T) {
	client := &mockClient{short: true}
	embedder := llm.NewWithClient(testConfig(), client)

	_, err := embedder.EmbedChunks(context.Background(), makeChunks(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrCountMismatch)
}

func TestEmbedChunks_ContextCancellation(t *testing.T) {
	client := &mockClient{
		failCalls: 100,
		err:       errors.New("endpoint down"),
	}
	embedder := llm.NewWithClient(testConfig(), client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := embedder.EmbedChunks(ctx, makeChunks(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedChunks_BatchCallback(t *testing.T) {
	config := testConfig()

	var reported []int
	config.OnBatch = func(batch, totalBatches, size int) {
		assert.Equal(t, 3, totalBatches)
		reported = append(reported, size)
	}

	embedder := llm.NewWithClient(config, &mockClient{})

	_, err := embedder.EmbedChunks(context.Background(), makeChunks(301))
	require.NoError(t, err)
	assert.Equal(t, []int{150, 150, 1}, reported)
}

func TestEmbedQuery(t *testing.T) {
	client := &mockClient{}
	embedder := llm.NewWithClient(testConfig(), client)

	vector, err := embedder.EmbedQuery(context.Background(), "chunk-7")
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, vector)
	require.Len(t, client.calls, 1)
	assert.Len(t, client.calls[0], 1)
}
