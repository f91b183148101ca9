// Package search is the hybrid query engine. It runs the lexical and vector
// retrievers in parallel over one index snapshot, fuses their rankings with
// Reciprocal Rank Fusion (RRF) and caches responses per snapshot version.
package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
)

// Mode selects how a query is answered.
type Mode string

const (
	ModeHybrid  Mode = "hybrid"
	ModeLexical Mode = "lexical"
	ModeVector  Mode = "vector"
	ModeCompare Mode = "compare"
)

// ParseMode accepts a mode name case-insensitively. "bm25" is an alias for
// lexical and the empty string means hybrid.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hybrid":
		return ModeHybrid, nil
	case "lexical", "bm25":
		return ModeLexical, nil
	case "vector":
		return ModeVector, nil
	case "compare":
		return ModeCompare, nil
	}
	return "", apperrors.ValidationError(apperrors.ErrCodeInvalidMode, fmt.Sprintf("unknown search mode %q", s)).
		WithSuggestion("Use one of: hybrid, lexical (bm25), vector, compare")
}

// Weights scale each retriever's RRF contribution.
type Weights struct {
	Lexical float64 `json:"lexical"`
	Vector  float64 `json:"vector"`
}

// DefaultWeights weighs both retrievers equally.
func DefaultWeights() Weights {
	return Weights{Lexical: 1.0, Vector: 1.0}
}

// Request is a query as received from a front end.
type Request struct {
	Query string
	Mode  Mode
	// K is the number of results; 0 means EngineConfig.FinalResults.
	K int
	// Weights overrides EngineConfig.DefaultWeights for hybrid queries.
	Weights *Weights
	// Explain attaches per-retriever contributions to hybrid results.
	Explain bool
}

// Result is one ranked document.
type Result struct {
	Rank     int     `json:"rank"`
	Key      string  `json:"document_key"`
	FileName string  `json:"file_name"`
	Score    float64 `json:"score"`
	Preview  string  `json:"text_preview"`

	// Per-retriever positions for hybrid results, 0 when absent.
	LexicalRank int `json:"lexical_rank,omitempty"`
	VectorRank  int `json:"vector_rank,omitempty"`
}

// Response is the answer to one request.
type Response struct {
	RequestID string        `json:"request_id"`
	Query     string        `json:"query"`
	Mode      Mode          `json:"mode"`
	K         int           `json:"k"`
	Results   []Result      `json:"results"`
	Took      time.Duration `json:"took"`

	// Degraded is set when one retriever failed and the answer comes from
	// the other alone. FailedRetrievers names it.
	Degraded         bool     `json:"degraded"`
	FailedRetrievers []string `json:"failed_retrievers,omitempty"`

	SnapshotVersion uint64 `json:"snapshot_version"`
	Cached          bool   `json:"cached"`

	Explanations []Explanation `json:"explanations,omitempty"`
	Comparison   *Comparison   `json:"comparison,omitempty"`
}

// ModeResult is one mode's side of a comparison.
type ModeResult struct {
	Results      []Result      `json:"results"`
	Took         time.Duration `json:"took"`
	AverageScore float64       `json:"average_score"`
	Error        string        `json:"error,omitempty"`
}

// Overlap counts documents shared between the top-k of each mode.
type Overlap struct {
	LexicalVector int `json:"lexical_vector"`
	LexicalHybrid int `json:"lexical_hybrid"`
	VectorHybrid  int `json:"vector_hybrid"`
	All           int `json:"all"`
}

// Comparison holds the three modes side by side.
type Comparison struct {
	Lexical ModeResult `json:"lexical"`
	Vector  ModeResult `json:"vector"`
	Hybrid  ModeResult `json:"hybrid"`
	Overlap Overlap    `json:"overlap"`
}

// Stats are cumulative engine counters.
type Stats struct {
	TotalSearches   int64          `json:"total_searches"`
	ByMode          map[Mode]int64 `json:"by_mode"`
	CacheHits       int64          `json:"cache_hits"`
	CacheMisses     int64          `json:"cache_misses"`
	Degraded        int64          `json:"degraded"`
	Timeouts        int64          `json:"timeouts"`
	Failures        int64          `json:"failures"`
	AvgResponseTime time.Duration  `json:"avg_response_time"`
	CachedEntries   int            `json:"cached_entries"`
}

// EngineConfig configures the engine.
type EngineConfig struct {
	// MaxCandidates truncates each retriever's list before fusion.
	MaxCandidates int

	// FinalResults is the default k.
	FinalResults int

	// MaxK bounds k.
	MaxK int

	// RRFK is the RRF smoothing constant.
	RRFK int

	// Timeout bounds one query, 0 disables.
	Timeout time.Duration

	DefaultWeights Weights

	CacheEnabled bool
	CacheSize    int
	CacheTTL     time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		MaxCandidates:  20,
		FinalResults:   10,
		MaxK:           50,
		RRFK:           DefaultRRFConstant,
		Timeout:        30 * time.Second,
		DefaultWeights: DefaultWeights(),
		CacheEnabled:   true,
		CacheSize:      256,
		CacheTTL:       5 * time.Minute,
	}
}

// ConfigFrom maps the loaded configuration onto EngineConfig.
func ConfigFrom(cfg *config.Config) EngineConfig {
	return EngineConfig{
		MaxCandidates: cfg.Search.MaxCandidates,
		FinalResults:  cfg.Search.FinalResults,
		MaxK:          cfg.Search.MaxK,
		RRFK:          cfg.Search.RRFK,
		Timeout:       cfg.Search.Timeout,
		DefaultWeights: Weights{
			Lexical: cfg.Search.LexicalWeight,
			Vector:  cfg.Search.VectorWeight,
		},
		CacheEnabled: cfg.Cache.Enabled,
		CacheSize:    cfg.Cache.Size,
		CacheTTL:     cfg.Cache.TTL,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultConfig()
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.FinalResults <= 0 {
		c.FinalResults = d.FinalResults
	}
	if c.MaxK <= 0 {
		c.MaxK = d.MaxK
	}
	if c.RRFK <= 0 {
		c.RRFK = d.RRFK
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.DefaultWeights.Lexical <= 0 && c.DefaultWeights.Vector <= 0 {
		c.DefaultWeights = d.DefaultWeights
	}
	return c
}
