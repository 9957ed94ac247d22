package processor

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer converts between text and model token IDs. It is handed to the
// Processor explicitly; no process-wide tokenizer state exists.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
}

// TiktokenTokenizer backs the Tokenizer interface with a tiktoken BPE encoding.
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}

	return &TiktokenTokenizer{encoding: enc}, nil
}

func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	return t.encoding.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) Decode(tokens []int) (string, error) {
	return t.encoding.Decode(tokens), nil
}
