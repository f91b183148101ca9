// Package tokenize splits text into lexical search terms.
//
// The analyzer is a bleve custom analyzer so index time and query time share
// exactly one pipeline: unicode word segmentation, full/half width folding,
// lowercasing, CJK bigrams, then stop word and short token removal.
package tokenize

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// AnalyzerName is the name of the document analyzer.
	AnalyzerName = "lfs_text"

	// FilterName is the registered type of the stop/length filter.
	FilterName = "lfs_stop_length"

	filterInstance = "lfs_stop_length_default"

	// names registered by the bleve cjk package
	cjkWidthName  = "cjk_width"
	cjkBigramName = "cjk_bigram"
)

// DefaultStopWords are dropped from both documents and queries.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"has", "have", "in", "is", "it", "its", "of", "on", "or", "that",
	"the", "this", "to", "was", "were", "will", "with",
}

func init() {
	_ = registry.RegisterTokenFilter(FilterName, stopLengthFilterConstructor)
}

// Tokenizer splits text into an ordered sequence of terms.
type Tokenizer interface {
	Tokenize(text string) []string
}

// Options configures the Analyzer.
type Options struct {
	StopWords []string
	// MinLength is the minimum rune length kept for alphanumeric tokens.
	// CJK tokens are exempt: a single ideograph is a meaningful term.
	MinLength int
}

// DefaultOptions returns the default analyzer options.
func DefaultOptions() Options {
	return Options{StopWords: DefaultStopWords, MinLength: 2}
}

// Analyzer is a Tokenizer backed by a bleve analysis chain.
type Analyzer struct {
	analyzer analysis.Analyzer
}

// New builds the analyzer.
func New(opts Options) (*Analyzer, error) {
	im := bleve.NewIndexMapping()

	stop := make([]interface{}, 0, len(opts.StopWords))
	for _, w := range opts.StopWords {
		stop = append(stop, w)
	}
	if err := im.AddCustomTokenFilter(filterInstance, map[string]interface{}{
		"type":       FilterName,
		"stop_words": stop,
		"min_length": float64(opts.MinLength),
	}); err != nil {
		return nil, fmt.Errorf("failed to add token filter: %w", err)
	}

	if err := im.AddCustomAnalyzer(AnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			cjkWidthName,
			lowercase.Name,
			cjkBigramName,
			filterInstance,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	a := im.AnalyzerNamed(AnalyzerName)
	if a == nil {
		return nil, fmt.Errorf("analyzer %s not registered", AnalyzerName)
	}
	return &Analyzer{analyzer: a}, nil
}

// MustDefault returns the default analyzer and panics on setup failure,
// which only happens if the bleve registry is broken.
func MustDefault() *Analyzer {
	a, err := New(DefaultOptions())
	if err != nil {
		panic(err)
	}
	return a
}

// Tokenize implements Tokenizer.
func (a *Analyzer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	stream := a.analyzer.Analyze([]byte(text))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		out = append(out, string(tok.Term))
	}
	return out
}

// Frequencies counts term occurrences.
func Frequencies(terms []string) map[string]int {
	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	return tf
}

func stopLengthFilterConstructor(config map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	f := &stopLengthFilter{stopWords: make(map[string]struct{})}
	if words, ok := config["stop_words"].([]interface{}); ok {
		for _, w := range words {
			if s, ok := w.(string); ok {
				f.stopWords[strings.ToLower(s)] = struct{}{}
			}
		}
	}
	switch n := config["min_length"].(type) {
	case float64:
		f.minLength = int(n)
	case int:
		f.minLength = n
	}
	return f, nil
}

// stopLengthFilter implements analysis.TokenFilter.
type stopLengthFilter struct {
	stopWords map[string]struct{}
	minLength int
}

// Filter implements analysis.TokenFilter.
func (f *stopLengthFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[string(token.Term)]; isStop {
			continue
		}
		if isLatin(token.Type) && utf8.RuneCount(token.Term) < f.minLength {
			continue
		}
		result = append(result, token)
	}
	return result
}

func isLatin(t analysis.TokenType) bool {
	return t == analysis.AlphaNumeric || t == analysis.Numeric
}
