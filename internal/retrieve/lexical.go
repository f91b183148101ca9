package retrieve

import (
	"context"
	"fmt"
	"math"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
)

// BM25 defaults.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// LexicalConfig holds the BM25 parameters.
type LexicalConfig struct {
	K1 float64
	B  float64

	// MinScore drops documents scoring below it. Documents that match no
	// query term are never returned.
	MinScore float64
}

// Lexical scores whole documents with Okapi BM25.
//
//	score(d, q) = Σ idf(t) · tf(t,d)·(k1+1) / (tf(t,d) + k1·(1 - b + b·|d|/avgdl))
//	idf(t)      = ln((N - df + 0.5)/(df + 0.5) + 1)
//
// Repeated query terms count once.
type Lexical struct {
	tok tokenize.Tokenizer
	cfg LexicalConfig
}

// NewLexical creates a BM25 retriever. Non-positive K1 and negative B fall
// back to the defaults.
func NewLexical(tok tokenize.Tokenizer, cfg LexicalConfig) (*Lexical, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer", ErrNilDependency)
	}
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultK1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultB
	}
	return &Lexical{tok: tok, cfg: cfg}, nil
}

func newLexicalFromDeps(d Deps) (Retriever, error) {
	cfg := LexicalConfig{}
	if d.Config != nil {
		cfg = LexicalConfig{K1: d.Config.Lexical.K1, B: d.Config.Lexical.B, MinScore: d.Config.Lexical.MinScore}
	}
	return NewLexical(d.Tokenizer, cfg)
}

// Name implements Retriever.
func (l *Lexical) Name() string { return NameLexical }

// Search implements Retriever.
func (l *Lexical) Search(ctx context.Context, snap *index.Snapshot, query string, k int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap == nil || k <= 0 {
		return []Candidate{}, nil
	}

	lex := snap.Lexical
	n := lex.DocCount()
	if n == 0 {
		return []Candidate{}, nil
	}
	avgdl := lex.AvgDocLen()
	if avgdl == 0 {
		avgdl = 1
	}

	scores := make(map[string]float64)
	seen := make(map[string]struct{})
	for _, term := range l.tok.Tokenize(query) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		postings := lex.Postings(term)
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log((float64(n)-df+0.5)/(df+0.5) + 1)
		for doc, tf := range postings {
			f := float64(tf)
			norm := l.cfg.K1 * (1 - l.cfg.B + l.cfg.B*float64(lex.DocLen(doc))/avgdl)
			scores[doc] += idf * f * (l.cfg.K1 + 1) / (f + norm)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(scores))
	for doc, s := range scores {
		if s <= 0 || s < l.cfg.MinScore {
			continue
		}
		cands = append(cands, Candidate{Key: doc, Score: s, ChunkOrdinal: -1})
	}
	return rank(cands, k), nil
}
