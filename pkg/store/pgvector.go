package store

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/primojavier/pdfrag/internal/models"
)

type VectorStoreConfig struct {
	ConnString   string
	TableName    string // chunk + embedding rows
	RawTableName string // raw file bytes
	VectorDim    int
	SearchLimit  int
}

type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func NewWithConfig(config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "pdf_documentation_text"
	}
	if config.RawTableName == "" {
		config.RawTableName = "pdf_raw_text"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1024 // bge-large embeddings
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	for _, name := range []string{config.TableName, config.RawTableName} {
		if !identifierPattern.MatchString(name) {
			return nil, fmt.Errorf("invalid table name: %s", name)
		}
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			pdf_name TEXT NOT NULL,
			content TEXT,
			chunk_index INTEGER,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createRawTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			path TEXT PRIMARY KEY,
			length BIGINT,
			modification_time TIMESTAMPTZ,
			content BYTEA
		)`, vs.config.RawTableName)

	_, err = vs.pool.Exec(ctx, createRawTable)
	if err != nil {
		return fmt.Errorf("failed to create raw table: %v", err)
	}

	// Create vector index
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Reset drops both tables and recreates them empty.
func (vs *VectorStore) Reset(ctx context.Context) error {
	for _, table := range []string{vs.config.TableName, vs.config.RawTableName} {
		_, err := vs.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
		if err != nil {
			return fmt.Errorf("failed to drop table %s: %v", table, err)
		}
	}

	return vs.initialize()
}

// StoreRaw upserts the original file bytes, one row per source path.
func (vs *VectorStore) StoreRaw(ctx context.Context, docs []models.Document) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (path, length, modification_time, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET
			length = EXCLUDED.length,
			modification_time = EXCLUDED.modification_time,
			content = EXCLUDED.content`,
		vs.config.RawTableName)

	for _, doc := range docs {
		_, err := vs.pool.Exec(ctx, stmt,
			doc.Path,
			doc.Metadata["length"],
			doc.Metadata["modification_time"],
			doc.Raw,
		)
		if err != nil {
			return fmt.Errorf("failed to store raw document %s: %v", doc.Path, err)
		}
	}

	return nil
}

// Store appends embedded chunks in a single transaction. Either every row in
// the run commits or none do.
func (vs *VectorStore) Store(ctx context.Context, chunks []models.EmbeddedChunk) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (pdf_name, content, chunk_index, embedding)
		VALUES ($1, $2, $3, $4)`,
		vs.config.TableName)

	for _, chunk := range chunks {
		_, err = tx.Exec(ctx, stmt,
			sanitizeUTF8(chunk.DocName),
			sanitizeUTF8(chunk.Content),
			chunk.Index,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d of %s: %v", chunk.Index, chunk.DocName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Query returns the chunks nearest to the query embedding by cosine distance.
func (vs *VectorStore) Query(ctx context.Context, queryEmbedding []float32, limit int) ([]models.Chunk, error) {
	if limit == 0 {
		limit = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT pdf_name, content, chunk_index
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		err := rows.Scan(
			&chunk.DocName,
			&chunk.Content,
			&chunk.Index,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// EnforcePrimaryKey marks a column NOT NULL and promotes it to the table's
// primary key. Used on streaming feature tables keyed by an entity id.
func (vs *VectorStore) EnforcePrimaryKey(ctx context.Context, table, column string) error {
	if !identifierPattern.MatchString(table) {
		return fmt.Errorf("invalid table name: %s", table)
	}
	if !identifierPattern.MatchString(column) {
		return fmt.Errorf("invalid column name: %s", column)
	}

	_, err := vs.pool.Exec(ctx, fmt.Sprintf(
		"ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, column))
	if err != nil {
		return fmt.Errorf("failed to set %s.%s NOT NULL: %v", table, column, err)
	}

	_, err = vs.pool.Exec(ctx, fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s)", table, column, column))
	if err != nil {
		return fmt.Errorf("failed to add primary key on %s.%s: %v", table, column, err)
	}

	return nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
