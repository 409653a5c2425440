package contextwindow

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token cost of text. It is a pluggable strategy
// so the window/eviction logic never depends on a particular tokenizer.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter approximates token counts from word and character counts.
// The estimate is the larger of chars/4 and words*4/3, which tracks BPE
// tokenizers within ~15% on English prose. Budgets derived from it must
// leave headroom; the window manager's 0.8/0.9 thresholds provide it.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	byChars := (len(text) + 3) / 4
	byWords := (words*4 + 2) / 3
	if byChars > byWords {
		return byChars
	}
	return byWords
}

// TiktokenCounter counts tokens exactly with the tiktoken BPE vocabularies.
// Unknown models fall back to the cl100k_base encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given model.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
