package processor

import (
	"fmt"
	"strings"

	"github.com/primojavier/pdfrag/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int // maximum chunk length in tokens
	ChunkOverlap int // tokens shared between consecutive chunks
}

type Processor struct {
	config    ProcessorConfig
	tokenizer Tokenizer
}

func NewWithConfig(config ProcessorConfig, tokenizer Tokenizer) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 500
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 50
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 10
	}

	return Processor{
		config:    config,
		tokenizer: tokenizer,
	}
}

func (p *Processor) Process(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for _, doc := range docs {
		texts, err := p.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to split document %s: %w", doc.Name, err)
		}

		for i, text := range texts {
			chunks = append(chunks, models.Chunk{
				DocID:   doc.ID,
				DocName: doc.Name,
				Index:   i,
				Content: text,
			})
		}
	}

	return chunks, nil
}

// SplitText splits text into segments of at most ChunkSize tokens, with
// consecutive segments sharing ChunkOverlap tokens of context. A segment end
// snaps back to the last sentence boundary inside its token window when one
// exists; otherwise the cut is mid-sentence at the window edge.
func (p *Processor) SplitText(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sentences := splitIntoSentences(text)

	// The canonical token sequence is the concatenation of per-sentence
	// encodings, so sentence boundaries are exact token offsets into it.
	var tokens []int
	var boundaries []int
	for _, sentence := range sentences {
		encoded, err := p.tokenizer.Encode(sentence)
		if err != nil {
			return nil, fmt.Errorf("tokenization failed: %w", err)
		}
		tokens = append(tokens, encoded...)
		boundaries = append(boundaries, len(tokens))
	}

	if len(tokens) == 0 {
		return nil, nil
	}

	var chunks []string
	start := 0
	for {
		end := start + p.config.ChunkSize
		if end >= len(tokens) {
			end = len(tokens)
		} else if b, ok := snapToBoundary(boundaries, start, end, p.config.ChunkOverlap); ok {
			end = b
		}

		chunk, err := p.tokenizer.Decode(tokens[start:end])
		if err != nil {
			return nil, fmt.Errorf("detokenization failed: %w", err)
		}
		chunks = append(chunks, chunk)

		if end == len(tokens) {
			break
		}
		start = end - p.config.ChunkOverlap
	}

	return chunks, nil
}

// snapToBoundary returns the largest sentence boundary in (start+overlap, end].
// Boundaries at or before start+overlap are rejected so the next chunk always
// starts past the current one.
func snapToBoundary(boundaries []int, start, end, overlap int) (int, bool) {
	best := -1
	for _, b := range boundaries {
		if b > start+overlap && b <= end && b > best {
			best = b
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

var sentenceEnders = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// splitIntoSentences cuts text after sentence-ending punctuation. Trailing
// whitespace stays attached to its sentence so that the concatenation of the
// returned slices is exactly the input text.
func splitIntoSentences(text string) []string {
	var sentences []string

	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				sentences = append(sentences, current.String())
				current.Reset()
				break
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}
