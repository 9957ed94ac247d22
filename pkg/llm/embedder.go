package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/primojavier/pdfrag/internal/models"
)

// ErrCountMismatch indicates the endpoint returned a different number of
// vectors than texts submitted. Positional pairing of chunk and vector is the
// only linkage, so a mismatched response cannot be used.
var ErrCountMismatch = errors.New("embedding response count mismatch")

// EmbedderClient is the remote embedding call. langchaingo's OpenAI-compatible
// client satisfies it; tests substitute their own.
type EmbedderClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type EmbedderConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxBatchSize int     // maximum texts per remote call
	MaxRetries   int     // retries per batch before the run fails
	InitialDelay time.Duration
	RateLimit    float64 // remote calls per second
	OnBatch      func(batch, totalBatches, size int)
}

// BatchEmbedder slices an ordered chunk sequence into contiguous batches of at
// most MaxBatchSize, issues one remote call per batch sequentially, and merges
// the vectors back in original order.
type BatchEmbedder struct {
	config  EmbedderConfig
	client  EmbedderClient
	limiter *rate.Limiter
}

func NewWithConfig(config EmbedderConfig) (*BatchEmbedder, error) {
	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return NewWithClient(config, client), nil
}

func NewWithClient(config EmbedderConfig, client EmbedderClient) *BatchEmbedder {
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = 150
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4.0
	}

	return &BatchEmbedder{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// EmbedChunks embeds every chunk and returns them paired with their vectors,
// in input order. Batch i+1 is not issued before batch i's response arrives.
// Any batch failing after retries fails the whole call; no partial result is
// returned.
func (e *BatchEmbedder) EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	totalBatches := (len(texts) + e.config.MaxBatchSize - 1) / e.config.MaxBatchSize

	embedded := make([]models.EmbeddedChunk, 0, len(chunks))
	for i := 0; i < len(texts); i += e.config.MaxBatchSize {
		end := i + e.config.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]
		batchNum := i/e.config.MaxBatchSize + 1

		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d of %d: %w", batchNum, totalBatches, err)
		}

		for j, vector := range vectors {
			embedded = append(embedded, models.EmbeddedChunk{
				Chunk:     chunks[i+j],
				Embedding: vector,
			})
		}

		if e.config.OnBatch != nil {
			e.config.OnBatch(batchNum, totalBatches, len(batch))
		}
	}

	return embedded, nil
}

// EmbedQuery embeds a single text, for similarity search.
func (e *BatchEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vectors[0], nil
}

func (e *BatchEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	err := e.withRetry(ctx, func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		v, err := e.client.CreateEmbedding(ctx, texts)
		if err != nil {
			return err
		}
		if len(v) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", ErrCountMismatch, len(v), len(texts))
		}

		vectors = v
		return nil
	})

	return vectors, err
}

// withRetry runs fn with exponential backoff, doubling the delay after each
// failed attempt. Context errors are never retried.
func (e *BatchEmbedder) withRetry(ctx context.Context, fn func() error) error {
	delay := e.config.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < e.config.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
