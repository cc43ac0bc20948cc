package tokenize

import (
	"strings"
	"unicode"
)

// Tokenizer turns raw text into an ordered token stream. Implementations
// must be deterministic: the same text always yields the same tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}

// Norsk is the default word tokenizer for Norwegian newspaper text.
// Corpus extraction keeps surface forms as written: no case folding, no
// stopword removal. Words keep internal hyphens and apostrophes
// (barne-tv, O'Brien), digit runs form tokens, and punctuation marks
// become standalone tokens.
type Norsk struct{}

// NewNorsk creates the default tokenizer.
func NewNorsk() *Norsk {
	return &Norsk{}
}

// Tokenize splits text into word and punctuation tokens.
func (n *Norsk) Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			current.WriteRune(r)
		case isJoiner(r) && current.Len() > 0 && i+1 < len(runes) && isWordRune(runes[i+1]):
			// Word-internal hyphen or apostrophe stays in the token
			current.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens = append(tokens, string(r))
		}
	}
	flush()

	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isJoiner(r rune) bool {
	return r == '-' || r == '\'' || r == '’'
}
