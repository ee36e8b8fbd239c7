package ai

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"avatar-live-server/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*TiktokenCounter)(nil)

// Per-message framing overhead used by chat-format token accounting.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

// TiktokenCounter estimates prompt size with a BPE encoding. It is an
// approximation for non-OpenAI models, which is all the budget trimmer needs.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tiktoken %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(messages []adapter.Message) int {
	n := tokensPerReply
	for _, m := range messages {
		n += tokensPerMessage
		n += len(c.enc.Encode(m.Role, nil, nil))
		n += len(c.enc.Encode(m.Content, nil, nil))
	}
	return n
}
