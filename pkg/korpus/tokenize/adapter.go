package tokenize

import (
	"fmt"

	"github.com/cognicore/aviskorpus/pkg/korpus/internalerr"
)

// Adapter runs a Tokenizer with per-record failure isolation. A panic
// inside the tokenizer, or output that violates its contract, becomes an
// error tagged with the record's hash instead of taking the run down.
type Adapter struct {
	tok Tokenizer
}

// NewAdapter wraps a tokenizer for use in the pipeline.
func NewAdapter(tok Tokenizer) *Adapter {
	return &Adapter{tok: tok}
}

// Run tokenizes the text of one record. Empty output from non-empty text
// is legal (the record is simply dropped upstream); tokens produced out
// of empty text are not.
func (a *Adapter) Run(hash, text string) (tokens []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			tokens = nil
			err = fmt.Errorf("%w: record %s: panic: %v", internalerr.ErrTokenize, hash, r)
		}
	}()

	tokens = a.tok.Tokenize(text)
	if text == "" && len(tokens) > 0 {
		return nil, fmt.Errorf("%w: record %s: %d tokens from empty text", internalerr.ErrTokenize, hash, len(tokens))
	}
	return tokens, nil
}
