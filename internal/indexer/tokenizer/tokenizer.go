// Package tokenizer provides text analysis for the search engine.
// Every analyzer lower-cases input and splits on non-alphanumeric
// boundaries; the english analyzer additionally removes stop-words and
// applies a simple suffix-based stemmer.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxTokenLength is the longest token kept, in bytes. Longer runs are
// usually encoded blobs or URLs and are dropped.
const MaxTokenLength = 40

const (
	AnalyzerDefault = "default"
	AnalyzerEnglish = "english"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its position among the
// tokens emitted for the same text.
type Token struct {
	Term     string
	Position int
}

// Analyzer turns text into Tokens. The same Analyzer must be used to build
// an index and to parse queries against it.
type Analyzer struct {
	name     string
	stem     bool
	stopWord bool
	minLen   int
}

// New returns the analyzer registered under name.
func New(name string) (*Analyzer, error) {
	switch name {
	case "", AnalyzerDefault:
		return &Analyzer{name: AnalyzerDefault, minLen: 1}, nil
	case AnalyzerEnglish:
		return &Analyzer{name: AnalyzerEnglish, stem: true, stopWord: true, minLen: 2}, nil
	default:
		return nil, fmt.Errorf("unknown analyzer %q", name)
	}
}

// Default returns the plain lower-casing analyzer.
func Default() *Analyzer {
	a, _ := New(AnalyzerDefault)
	return a
}

func (a *Analyzer) Name() string { return a.name }

// Analyze breaks text into lowercased Tokens.
func (a *Analyzer) Analyze(text string) []Token {
	if text == "" {
		return nil
	}
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if len(word) < a.minLen || len(word) > MaxTokenLength {
			continue
		}
		if a.stopWord {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		if a.stem {
			word = stem(word)
			if word == "" {
				continue
			}
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms is Analyze without positions.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Analyze(text)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}
