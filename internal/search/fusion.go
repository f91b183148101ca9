package search

import (
	"sort"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/retrieve"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// RankedList is one retriever's candidates for a query, best first.
type RankedList struct {
	Name       string
	Weight     float64
	Candidates []retrieve.Candidate
}

// FusedResult is a document after fusion.
type FusedResult struct {
	Key   string
	Score float64
	Rank  int

	// Ranks maps list name to the 1-based position in that list.
	Ranks map[string]int
}

// Contribution is one list's share of a fused score.
type Contribution struct {
	Retriever string  `json:"retriever"`
	Rank      int     `json:"rank"`
	Weight    float64 `json:"weight"`
	Score     float64 `json:"score"`
}

// Explanation breaks a fused score into its contributions.
type Explanation struct {
	Key           string         `json:"document_key"`
	Score         float64        `json:"score"`
	Contributions []Contribution `json:"contributions"`
	// MissingFrom lists retrievers that did not return the document.
	MissingFrom []string `json:"missing_from,omitempty"`
}

// RRFFusion merges ranked lists using Reciprocal Rank Fusion.
//
// Algorithm: score(d) = Σ weight_i / (K + rank_i)
//
// rank_i is d's 1-based position in list i; lists without d contribute
// nothing. Lists with a non-positive weight are skipped entirely, so a
// zero weight reduces fusion to the other lists' order.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion with K=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates a fusion with a custom K. If k <= 0, defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines lists, sorts by descending score with ties broken by key
// and truncates to limit (limit <= 0 keeps everything).
func (f *RRFFusion) Fuse(lists []RankedList, limit int) []FusedResult {
	scores := make(map[string]*FusedResult)
	for _, l := range lists {
		if l.Weight <= 0 {
			continue
		}
		for i, c := range l.Candidates {
			r, ok := scores[c.Key]
			if !ok {
				r = &FusedResult{Key: c.Key, Ranks: make(map[string]int, len(lists))}
				scores[c.Key] = r
			}
			r.Score += l.Weight / float64(f.K+i+1)
			r.Ranks[l.Name] = i + 1
		}
	}

	results := make([]FusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key < results[j].Key
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// Explain reports how key's fused score is built from lists.
func (f *RRFFusion) Explain(lists []RankedList, key string) Explanation {
	ex := Explanation{Key: key}
	for _, l := range lists {
		pos := 0
		for i, c := range l.Candidates {
			if c.Key == key {
				pos = i + 1
				break
			}
		}
		if pos == 0 {
			ex.MissingFrom = append(ex.MissingFrom, l.Name)
			continue
		}
		contrib := Contribution{Retriever: l.Name, Rank: pos, Weight: l.Weight}
		if l.Weight > 0 {
			contrib.Score = l.Weight / float64(f.K+pos)
		}
		ex.Score += contrib.Score
		ex.Contributions = append(ex.Contributions, contrib)
	}
	return ex
}
