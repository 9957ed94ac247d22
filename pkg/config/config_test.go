package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
embedder:
  base_url: "http://localhost:8000/v1"
  api_key: "test-key"
  model: "bge-large-en-v1.5"
  max_batch_size: 100
  max_retries: 5
  rate_limit: 2.5

llm:
  base_url: "http://localhost:8000/v1"
  model: "gpt-4"
  max_tokens: 1000
  temperature: 0.5

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_chunks"
  raw_table_name: "test_raw"
  vector_dim: 768
  search_limit: 3

loader:
  docs_dir: "/data/raw_documents"
  allowed_extensions:
    - ".pdf"
    - ".txt"
  ignore_patterns:
    - "/drafts/"

processor:
  chunk_size: 400
  chunk_overlap: 40
  encoding: "cl100k_base"

ui:
  streaming: false
  theme: "dark"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "http://localhost:8000/v1", config.Embedder.BaseURL)
	assert.Equal(t, "test-key", config.Embedder.APIKey)
	assert.Equal(t, 100, config.Embedder.MaxBatchSize)
	assert.Equal(t, 5, config.Embedder.MaxRetries)
	assert.Equal(t, 2.5, config.Embedder.RateLimit)
	assert.Equal(t, "gpt-4", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "test_chunks", config.Database.TableName)
	assert.Equal(t, "test_raw", config.Database.RawTableName)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, "/data/raw_documents", config.Loader.DocsDir)
	assert.Equal(t, []string{".pdf", ".txt"}, config.Loader.AllowedExtensions)
	assert.Equal(t, 400, config.Processor.ChunkSize)
	assert.Equal(t, 40, config.Processor.ChunkOverlap)
	assert.False(t, config.UI.Streaming)
	assert.Equal(t, "dark", config.UI.Theme)
}

func TestLoadConfig_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("embedder:\n  base_url: \"http://localhost:8000/v1\"\n"), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "bge-large-en-v1.5", config.Embedder.Model)
	assert.Equal(t, 150, config.Embedder.MaxBatchSize)
	assert.Equal(t, 3, config.Embedder.MaxRetries)
	assert.Equal(t, "pdf_documentation_text", config.Database.TableName)
	assert.Equal(t, "pdf_raw_text", config.Database.RawTableName)
	assert.Equal(t, 1024, config.Database.VectorDim)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, 50, config.Processor.ChunkOverlap)
	assert.Equal(t, "cl100k_base", config.Processor.Encoding)
	assert.Equal(t, []string{".pdf", ".txt", ".md", ".html"}, config.Loader.AllowedExtensions)
}

func TestLoadConfig_EnvMerge(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("embedder:\n  base_url: \"http://file-value:8000\"\n"), 0644)
	require.NoError(t, err)

	t.Setenv("EMBEDDING_BASE_URL", "http://env-value:9000")
	t.Setenv("EMBEDDING_API_KEY", "env-key")
	t.Setenv("DATABASE_URL", "postgres://env-host:5432/envdb")

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://env-value:9000", config.Embedder.BaseURL)
	assert.Equal(t, "env-key", config.Embedder.APIKey)
	assert.Equal(t, "postgres://env-host:5432/envdb", config.Database.URL)
}

func TestValidate(t *testing.T) {
	config, err := getDefaultConfig()
	require.NoError(t, err)
	config.Embedder.BaseURL = "http://localhost:8000/v1"

	assert.Empty(t, config.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "missing embedder base URL",
			mutate: func(c *Config) { c.Embedder.BaseURL = "" },
			field:  "embedder.base_url",
		},
		{
			name:   "zero batch size",
			mutate: func(c *Config) { c.Embedder.MaxBatchSize = 0 },
			field:  "embedder.max_batch_size",
		},
		{
			name:   "overlap not below chunk size",
			mutate: func(c *Config) { c.Processor.ChunkOverlap = c.Processor.ChunkSize },
			field:  "processor.chunk_overlap",
		},
		{
			name:   "bad extension format",
			mutate: func(c *Config) { c.Loader.AllowedExtensions = []string{"pdf"} },
			field:  "loader.allowed_extensions",
		},
		{
			name:   "excessive temperature",
			mutate: func(c *Config) { c.LLM.Temperature = 3 },
			field:  "llm.temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := getDefaultConfig()
			require.NoError(t, err)
			config.Embedder.BaseURL = "http://localhost:8000/v1"

			tt.mutate(config)

			errs := config.Validate()
			require.NotEmpty(t, errs)

			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "expected a validation error on %s, got %v", tt.field, errs)
		})
	}
}
