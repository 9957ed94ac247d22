package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/primojavier/pdfrag/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
}

// ChatEngine is an engine that uses an LLM to generate chat responses over
// retrieved document chunks.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithChatConfig creates a new ChatEngine with the given configuration.
func NewWithChatConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "gpt-3.5-turbo"
	}
	if config.Temperature <= 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a helpful assistant with access to excerpts from the user's document library. Answer questions based on this context."
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "Relevant excerpts:\n%s\n\nQuestion: %s"
	}

	opts := []openai.Option{
		openai.WithModel(config.Model),
		openai.WithToken(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// Chat generates a response based on the query and retrieved chunks.
func (ce *ChatEngine) Chat(ctx context.Context, query string, chunks []models.Chunk) (string, error) {
	content := ce.buildMessages(query, chunks)

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return response.Choices[0].Content, nil
}

// ChatStream generates a stream of response fragments based on the query and
// retrieved chunks. The channel closes when the response is complete; errors
// are delivered as a final "Error:" message.
func (ce *ChatEngine) ChatStream(ctx context.Context, query string, chunks []models.Chunk) (<-chan string, error) {
	content := ce.buildMessages(query, chunks)

	resultChan := make(chan string)

	go func() {
		defer close(resultChan)

		_, err := ce.llm.GenerateContent(ctx, content,
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithTemperature(ce.config.Temperature),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				resultChan <- string(chunk)
				return nil
			}),
		)
		if err != nil {
			resultChan <- fmt.Sprintf("Error: %v", err)
		}
	}()

	return resultChan, nil
}

func (ce *ChatEngine) buildMessages(query string, chunks []models.Chunk) []llms.MessageContent {
	var contextBuilder strings.Builder
	for _, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf("Source: %s\n%s\n\n", chunk.DocName, chunk.Content))
	}

	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman,
			fmt.Sprintf(ce.config.ContextTemplate, contextBuilder.String(), query)),
	}
}

// FormatSources formats the distinct source documents for citation.
func FormatSources(chunks []models.Chunk) string {
	var sources []string
	seen := make(map[string]bool)

	for _, chunk := range chunks {
		if !seen[chunk.DocName] {
			sources = append(sources, chunk.DocName)
			seen[chunk.DocName] = true
		}
	}

	if len(sources) == 0 {
		return ""
	}

	return fmt.Sprintf("\nSources:\n%s", strings.Join(sources, "\n"))
}
