// internal/insight/tokens.go
package insight

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/sentinelops/pkg/llm"
)

// TokenCounter measures prompt size.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the model's BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the encoding for model, falling back to
// cl100k_base for unknown models.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the token count for text.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func countMessages(c TokenCounter, msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += c.Count(m.Content)
	}
	return n
}
