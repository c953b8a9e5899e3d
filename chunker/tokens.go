package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text in model tokens.
//
// The chunker assumes counts are monotonic (a substring never has more
// tokens than the string containing it) and close to additive over
// concatenation. Both counters in this package satisfy that.
type TokenCounter interface {
	Count(text string) int
}

// ApproxCounter estimates one token per four characters, rounded up.
// It is deterministic and needs no vocabulary.
type ApproxCounter struct{}

var _ TokenCounter = ApproxCounter{}

// Count returns ceil(runes/4).
func (ApproxCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// DefaultEncoding is the tiktoken encoding used by current OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// TiktokenCounter counts tokens exactly with a BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

var _ TokenCounter = (*TiktokenCounter)(nil)

// NewTiktokenCounter loads the named encoding. The vocabulary is fetched
// on first use and cached by tiktoken-go (see TIKTOKEN_CACHE_DIR).
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}
