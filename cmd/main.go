package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/primojavier/pdfrag/internal/models"
	"github.com/primojavier/pdfrag/internal/types"
	cfgPkg "github.com/primojavier/pdfrag/pkg/config"
	"github.com/primojavier/pdfrag/pkg/llm"
	"github.com/primojavier/pdfrag/pkg/loader"
	"github.com/primojavier/pdfrag/pkg/processor"
	"github.com/primojavier/pdfrag/pkg/store"
	"github.com/primojavier/pdfrag/server"
)

type Config struct {
	EmbedURL     string
	APIKey       string
	DBUrl        string
	DocsDir      string
	Model        string
	EmbedModel   string
	ChunkSize    int
	ChunkOverlap int
	Encoding     string
	VectorDim    int
	TableName    string
	RawTableName string
	BatchSize    int
	RateLimit    float64
	MaxTokens    int
	Streaming    bool
	Temperature  float64
	Reset        bool
	EnforcePK    string
	ServeAddr    string
}

func main() {
	config := parseFlags()

	if err := run(config); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Config {
	var config Config
	var configPath string

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&config.EmbedURL, "embed-url", os.Getenv("EMBEDDING_BASE_URL"), "Embedding endpoint base URL")
	flag.StringVar(&config.APIKey, "api-key", os.Getenv("EMBEDDING_API_KEY"), "API key for the serving endpoint")
	flag.StringVar(&config.DBUrl, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&config.DocsDir, "docs-dir", "", "Documents folder to ingest")
	flag.StringVar(&config.Model, "model", "gpt-3.5-turbo", "Chat model to use")
	flag.StringVar(&config.EmbedModel, "embed-model", "bge-large-en-v1.5", "Embedding model to use")
	flag.IntVar(&config.ChunkSize, "chunk-size", 500, "Maximum chunk size in tokens")
	flag.IntVar(&config.ChunkOverlap, "chunk-overlap", 50, "Token overlap between consecutive chunks")
	flag.StringVar(&config.Encoding, "encoding", "cl100k_base", "Tokenizer encoding")
	flag.IntVar(&config.VectorDim, "vector-dim", 1024, "Vector dimension")
	flag.StringVar(&config.TableName, "table", "pdf_documentation_text", "PostgreSQL chunk table name")
	flag.StringVar(&config.RawTableName, "raw-table", "pdf_raw_text", "PostgreSQL raw document table name")
	flag.IntVar(&config.BatchSize, "batch-size", 150, "Maximum texts per embedding request")
	flag.Float64Var(&config.RateLimit, "rate-limit", 4.0, "Rate limit for embedding requests")
	flag.IntVar(&config.MaxTokens, "max-tokens", 2000, "Maximum tokens for LLM response")
	flag.BoolVar(&config.Streaming, "stream", true, "Enable streaming responses")
	flag.Float64Var(&config.Temperature, "temperature", 0.8, "Set the LLM Temperature")
	flag.BoolVar(&config.Reset, "reset", false, "Drop previous tables before ingesting")
	flag.StringVar(&config.EnforcePK, "enforce-pk", "", "Promote table:column to NOT NULL primary key")
	flag.StringVar(&config.ServeAddr, "serve", "", "Run the WebSocket server on this address instead of the chat loop")
	flag.Parse()

	// Load config file if specified
	if cfg, err := cfgPkg.LoadConfig(configPath); err == nil {
		// Override config with command line flags if provided
		if flag.Lookup("embed-url").Value.String() != "" {
			cfg.Embedder.BaseURL = config.EmbedURL
		}

		// Update config struct
		config.EmbedURL = cfg.Embedder.BaseURL
		config.APIKey = cfg.Embedder.APIKey
		config.EmbedModel = cfg.Embedder.Model
		config.BatchSize = cfg.Embedder.MaxBatchSize
		config.RateLimit = cfg.Embedder.RateLimit
		config.Model = cfg.LLM.Model
		config.MaxTokens = cfg.LLM.MaxTokens
		config.Temperature = cfg.LLM.Temperature
		config.DBUrl = cfg.Database.URL
		config.TableName = cfg.Database.TableName
		config.RawTableName = cfg.Database.RawTableName
		config.VectorDim = cfg.Database.VectorDim
		config.ChunkSize = cfg.Processor.ChunkSize
		config.ChunkOverlap = cfg.Processor.ChunkOverlap
		config.Encoding = cfg.Processor.Encoding
		config.Streaming = cfg.UI.Streaming
		if config.DocsDir == "" {
			config.DocsDir = cfg.Loader.DocsDir
		}
	}

	return config
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(config Config) error {
	ctx := context.Background()

	// Initialize components
	tokenizer, err := processor.NewTiktokenTokenizer(config.Encoding)
	if err != nil {
		return fmt.Errorf("failed to initialize tokenizer: %v", err)
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    config.ChunkSize,
		ChunkOverlap: config.ChunkOverlap,
	}, tokenizer)

	embedder, err := llm.NewWithConfig(llm.EmbedderConfig{
		BaseURL:      config.EmbedURL,
		APIKey:       config.APIKey,
		Model:        config.EmbedModel,
		MaxBatchSize: config.BatchSize,
		RateLimit:    config.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	chatEngine, err := llm.NewWithChatConfig(llm.ChatConfig{
		BaseURL:     config.EmbedURL,
		APIKey:      config.APIKey,
		Model:       config.Model,
		MaxTokens:   config.MaxTokens,
		Temperature: config.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	vectorStore, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString:   config.DBUrl,
		TableName:    config.TableName,
		RawTableName: config.RawTableName,
		VectorDim:    config.VectorDim,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %v", err)
	}

	defer vectorStore.Close()

	if config.Reset {
		if err := vectorStore.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset tables: %v", err)
		}
		color.Yellow("✓ Dropped and recreated tables\n")
	}

	if config.EnforcePK != "" {
		table, column, found := strings.Cut(config.EnforcePK, ":")
		if !found {
			return fmt.Errorf("invalid -enforce-pk value %q, expected table:column", config.EnforcePK)
		}
		if err := vectorStore.EnforcePrimaryKey(ctx, table, column); err != nil {
			return err
		}
		color.Green("✓ Enforced primary key %s(%s)\n", table, column)
	}

	// If a documents folder is provided, ingest it
	if config.DocsDir != "" {
		if err := ingest(ctx, config, proc, vectorStore); err != nil {
			return err
		}
	}

	if config.ServeAddr != "" {
		srv := server.New(server.Config{
			Streaming: config.Streaming,
			DocsDir:   config.DocsDir,
		}, &proc, embedder, chatEngine, vectorStore)
		color.Cyan("\nStarting WebSocket server on %s", config.ServeAddr)
		return srv.ListenAndServe(config.ServeAddr)
	}

	return chatLoop(ctx, config, embedder, chatEngine, vectorStore)
}

func ingest(ctx context.Context, config Config, proc processor.Processor, vectorStore types.VectorStore) error {
	color.Blue("\nStarting ingestion pipeline for %s\n", config.DocsDir)

	loadingBar := getProgressBar(-1, " Loading documents...")
	l, err := loader.NewWithConfig(loader.LoaderConfig{
		RootDir: config.DocsDir,
		OnProgress: func(path string) {
			loadingBar.Add(1)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize loader: %v", err)
	}

	docs, err := l.Load()
	if err != nil {
		return fmt.Errorf("failed to load documents: %v", err)
	}
	loadingBar.Finish()
	color.Green("\n✓ Loaded %d documents\n", len(docs))

	if err := vectorStore.StoreRaw(ctx, docs); err != nil {
		return fmt.Errorf("failed to store raw documents: %v", err)
	}

	processingBar := getProgressBar(len(docs), " Chunking documents...")
	var chunks []models.Chunk

	startTime := time.Now()
	for i, doc := range docs {
		docChunks, err := proc.Process([]models.Document{doc})
		if err != nil {
			return fmt.Errorf("failed to process document %s: %v", doc.Name, err)
		}
		chunks = append(chunks, docChunks...)
		processingBar.Add(1)

		elapsed := time.Since(startTime).Seconds()
		rate := float64(i+1) / elapsed
		processingBar.Describe(color.BlueString(
			" Chunking documents... (%.1f docs/sec)", rate))
	}
	color.Green("\n✓ Split into %d chunks\n", len(chunks))

	embeddingBar := getProgressBar(len(chunks), " Embedding chunks...")
	startTime = time.Now()

	embedder, err := llm.NewWithConfig(llm.EmbedderConfig{
		BaseURL:      config.EmbedURL,
		APIKey:       config.APIKey,
		Model:        config.EmbedModel,
		MaxBatchSize: config.BatchSize,
		RateLimit:    config.RateLimit,
		OnBatch: func(batch, totalBatches, size int) {
			embeddingBar.Add(size)

			elapsed := time.Since(startTime).Seconds()
			rate := float64(batch*config.BatchSize) / elapsed
			embeddingBar.Describe(color.BlueString(
				" Embedding chunks... batch %d/%d (%.1f chunks/sec)", batch, totalBatches, rate))
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	embedded, err := embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %v", err)
	}
	embeddingBar.Finish()
	color.Green("\n✓ Embedded %d chunks\n", len(embedded))

	storageSpinner := getSpinner(" Storing in vector database...")
	if err := vectorStore.Store(ctx, embedded); err != nil {
		storageSpinner.Finish()
		return fmt.Errorf("failed to store chunks: %v", err)
	}
	storageSpinner.Finish()
	color.Green("\n✓ Storage complete\n")

	return nil
}

func chatLoop(ctx context.Context, config Config, embedder types.Embedder, chatEngine *llm.ChatEngine, vectorStore types.VectorStore) error {
	color.Cyan("\nChat with your document library (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := scanner.Text()
		if strings.ToLower(query) == "exit" {
			break
		}

		queryEmbedding, err := embedder.EmbedQuery(ctx, query)
		if err != nil {
			color.Red("Failed to create query embedding: %v\n", err)
			continue
		}

		querySpinner := getSpinner(" Searching documents...")
		chunks, err := vectorStore.Query(ctx, queryEmbedding, 0)
		querySpinner.Finish()

		if err != nil {
			color.Red("Error querying chunks: %v\n", err)
			continue
		}

		if config.Streaming {
			stream, err := chatEngine.ChatStream(ctx, query, chunks)
			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}

			fmt.Print("\n")
			assistantPrompt("Assistant: ")

			for chunk := range stream {
				if strings.HasPrefix(chunk, "Error:") {
					color.Red("\n%s", chunk)
					break
				}
				fmt.Print(chunk)
			}
			fmt.Println(llm.FormatSources(chunks))
		} else {
			responseSpinner := getSpinner(" Generating response...")
			response, err := chatEngine.Chat(ctx, query, chunks)
			responseSpinner.Finish()

			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}
			assistantPrompt("\nAssistant: %s\n", response)
			fmt.Println(llm.FormatSources(chunks))
		}
	}

	return nil
}
