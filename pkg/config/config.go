package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Embedder struct {
		BaseURL      string  `yaml:"base_url"`
		APIKey       string  `yaml:"api_key"`
		Model        string  `yaml:"model"`
		MaxBatchSize int     `yaml:"max_batch_size"`
		MaxRetries   int     `yaml:"max_retries"`
		RateLimit    float64 `yaml:"rate_limit"`
	} `yaml:"embedder"`

	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		APIKey      string  `yaml:"api_key"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		URL          string `yaml:"url"`
		TableName    string `yaml:"table_name"`
		RawTableName string `yaml:"raw_table_name"`
		VectorDim    int    `yaml:"vector_dim"`
		SearchLimit  int    `yaml:"search_limit"`
	} `yaml:"database"`

	Loader struct {
		DocsDir           string   `yaml:"docs_dir"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
		IgnorePatterns    []string `yaml:"ignore_patterns"`
	} `yaml:"loader"`

	Processor struct {
		ChunkSize    int    `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
		Encoding     string `yaml:"encoding"`
	} `yaml:"processor"`

	UI struct {
		Streaming bool   `yaml:"streaming"`
		Theme     string `yaml:"theme"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/pdfrag/config.yaml"),
			"/etc/pdfrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Embedder.Model == "" {
		config.Embedder.Model = "bge-large-en-v1.5"
	}
	if config.Embedder.MaxBatchSize == 0 {
		config.Embedder.MaxBatchSize = 150
	}
	if config.Embedder.MaxRetries == 0 {
		config.Embedder.MaxRetries = 3
	}
	if config.Embedder.RateLimit == 0 {
		config.Embedder.RateLimit = 4.0
	}

	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-3.5-turbo"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = config.Embedder.BaseURL
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "pdf_documentation_text"
	}
	if config.Database.RawTableName == "" {
		config.Database.RawTableName = "pdf_raw_text"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 1024
	}
	if config.Database.SearchLimit == 0 {
		config.Database.SearchLimit = 5
	}

	if len(config.Loader.AllowedExtensions) == 0 {
		config.Loader.AllowedExtensions = []string{".pdf", ".txt", ".md", ".html"}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 500
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 50
	}
	if config.Processor.Encoding == "" {
		config.Processor.Encoding = "cl100k_base"
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("EMBEDDING_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
	}
	if apiKey := os.Getenv("EMBEDDING_API_KEY"); apiKey != "" {
		config.Embedder.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && config.LLM.APIKey == "" {
		config.LLM.APIKey = apiKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
}
